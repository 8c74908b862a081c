package dataprocessing

import (
	"strings"
	"time"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

// DateLayouts are tried in order when no layout is given
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// ParseDate parses s with layout, or with the first matching DateLayouts entry
// when layout is empty
func ParseDate(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if layout != "" {
		ts, err := time.Parse(layout, s)
		return ts, err == nil
	}
	for _, l := range DateLayouts {
		if ts, err := time.Parse(l, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// timestamps returns the values of a timestamp or date-like text column.
// Missing or unparseable cells are reported as not ok.
func timestamps(table *domain.Table, column string) ([]time.Time, []bool, error) {
	col, ok := table.Column(column)
	if !ok {
		return nil, nil, apperrors.NewMissingColumnsError([]string{column})
	}
	if col.Type != domain.TypeTimestamp && !col.Type.IsStringLike() {
		return nil, nil, apperrors.NewColumnTypeError(column, string(domain.TypeTimestamp), string(col.Type))
	}

	out := make([]time.Time, col.Len())
	valid := make([]bool, col.Len())
	for i, v := range col.Values {
		switch x := v.(type) {
		case time.Time:
			out[i], valid[i] = x, true
		case string:
			out[i], valid[i] = ParseDate(x, "")
		}
	}
	return out, valid, nil
}
