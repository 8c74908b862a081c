package loader

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	apperrors "salespulse/internal/errors"
)

// readXLSX returns the header and data rows of the requested sheet, or of
// the first sheet holding any data when sheet is empty
func readXLSX(raw []byte, sheet string, logger *slog.Logger) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, apperrors.NewParsingError("failed to open workbook", err)
	}
	defer f.Close()

	var rows [][]string
	var sheetName string

	if sheet != "" {
		rows, err = f.GetRows(sheet)
		if err != nil {
			return nil, nil, apperrors.NewParsingError(fmt.Sprintf("sheet %q not found", sheet), err).
				WithContext("sheets", f.GetSheetList())
		}
		sheetName = sheet
	} else {
		for _, name := range f.GetSheetList() {
			candidate, err := f.GetRows(name)
			if err != nil {
				logger.Warn("Skipping unreadable sheet",
					slog.String("sheet_name", name),
					slog.String("error", err.Error()))
				continue
			}
			if len(candidate) > 0 {
				rows, sheetName = candidate, name
				break
			}
		}
	}

	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, nil, emptyError()
	}

	logger.Info("Found data in sheet",
		slog.String("sheet_name", sheetName),
		slog.Int("total_rows", len(rows)))
	return rows[0], rows[1:], nil
}
