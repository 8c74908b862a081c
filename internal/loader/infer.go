package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

// missingMarkers are cell texts read as missing values (compared lower case)
var missingMarkers = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"#n/a": {},
	"nan":  {},
	"null": {},
	"none": {},
	"<na>": {},
}

func isMissing(cell string) bool {
	_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// headerNames trims names, labels blank ones "Unnamed: i" and suffixes
// repeats with .1, .2 and so on
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	suffix := make(map[string]int)
	for i, h := range header {
		base := strings.TrimSpace(h)
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for used[name] {
			suffix[base]++
			name = fmt.Sprintf("%s.%d", base, suffix[base])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// inferType returns the narrowest type that parses every non-missing cell:
// integer, float, boolean, then text. A column without values is float.
func inferType(cells []string) domain.ColumnType {
	isInt, isFloat, isBool := true, true, true
	present := 0
	for _, c := range cells {
		if isMissing(c) {
			continue
		}
		present++
		s := strings.TrimSpace(c)
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, _, err := parseFloat(s); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if !strings.EqualFold(s, "true") && !strings.EqualFold(s, "false") {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return domain.TypeText
		}
	}

	switch {
	case present == 0:
		return domain.TypeFloat
	case isInt:
		return domain.TypeInteger
	case isFloat:
		return domain.TypeFloat
	case isBool:
		return domain.TypeBoolean
	default:
		return domain.TypeText
	}
}

// parseFloat parses s and reports whether the value is finite. Infinities
// are read as missing so they never reach sums or JSON output.
func parseFloat(s string) (float64, bool, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, !math.IsInf(v, 0) && !math.IsNaN(v), nil
}

func parseCell(cell string, typ domain.ColumnType) any {
	if isMissing(cell) {
		return nil
	}
	s := strings.TrimSpace(cell)
	switch typ {
	case domain.TypeInteger:
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	case domain.TypeFloat:
		v, finite, err := parseFloat(s)
		if err != nil || !finite {
			return nil
		}
		return v
	case domain.TypeBoolean:
		return strings.EqualFold(s, "true")
	default:
		return cell
	}
}

// buildTable converts string records into typed columns. Short rows are
// padded with missing cells; blank rows are skipped.
func buildTable(header []string, rows [][]string) (*domain.Table, error) {
	if len(header) == 0 {
		return nil, emptyError()
	}
	names := headerNames(header)
	width := len(names)

	cells := make([][]string, width)
	for r, row := range rows {
		if blank(row) {
			continue
		}
		for j := width; j < len(row); j++ {
			if strings.TrimSpace(row[j]) != "" {
				// +2: one for the header, one for 1-based numbering
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("line %d has %d fields, header has %d", r+2, len(row), width), nil).
					WithContext("line", r+2)
			}
		}
		for j := 0; j < width; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			cells[j] = append(cells[j], cell)
		}
	}

	columns := make([]*domain.Column, width)
	for j, name := range names {
		typ := inferType(cells[j])
		values := make([]any, len(cells[j]))
		for i, c := range cells[j] {
			values[i] = parseCell(c, typ)
		}
		columns[j] = &domain.Column{Name: name, Type: typ, Values: values}
	}

	table, err := domain.NewTable(columns...)
	if err != nil {
		return nil, apperrors.NewStructuralError(err.Error())
	}
	return table, nil
}
