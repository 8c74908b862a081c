package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	apperrors "salespulse/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Delimiters are the candidates considered when sniffing a CSV upload
var Delimiters = []rune{',', ';', '\t', '|'}

// sniffLines is the number of leading lines inspected by SniffDelimiter
const sniffLines = 5

func readCSV(raw []byte, delimiter rune, logger *slog.Logger) ([]string, [][]string, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, nil, err
	}
	if delimiter == 0 {
		delimiter = SniffDelimiter(text)
		logger.Debug("CSV delimiter detected", slog.String("delimiter", string(delimiter)))
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, apperrors.NewParsingError(fmt.Sprintf("malformed CSV: %v", err), err)
	}

	// skip leading blank lines
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, nil, emptyError()
	}
	return records[0], records[1:], nil
}

// decodeText strips a UTF-8 BOM and converts Windows-1252 input to UTF-8
func decodeText(raw []byte) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return raw, nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, apperrors.NewParsingError("unable to decode file as UTF-8 or Windows-1252", err).
			WithContext("attempted_encodings", []string{"utf-8", "windows-1252"})
	}
	return decoded, nil
}

// SniffDelimiter picks the candidate that splits the first lines into the
// same number of fields, preferring the one producing the most fields.
// Falls back to the most frequent candidate, then to a comma.
func SniffDelimiter(text []byte) rune {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(text))
	for scanner.Scan() && len(lines) < sniffLines {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestFields := rune(0), 1
	var frequent rune
	frequentCount := 0
	for _, d := range Delimiters {
		total := 0
		consistent := true
		fields := strings.Count(lines[0], string(d)) + 1
		for _, line := range lines {
			n := strings.Count(line, string(d))
			total += n
			if n+1 != fields {
				consistent = false
			}
		}
		if total > frequentCount {
			frequent, frequentCount = d, total
		}
		if consistent && fields > bestFields {
			best, bestFields = d, fields
		}
	}

	switch {
	case best != 0:
		return best
	case frequent != 0:
		return frequent
	default:
		return ','
	}
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
