package dataprocessing

import (
	"fmt"
	"strings"
	"time"
)

// AggFunc is an aggregation applied to the values of one group
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMean
	AggMedian
	AggMin
	AggMax
	AggCount
	AggNUnique
	AggStd
	AggFirst
	AggLast
)

var aggFuncNames = map[AggFunc]string{
	AggSum:     "sum",
	AggMean:    "mean",
	AggMedian:  "median",
	AggMin:     "min",
	AggMax:     "max",
	AggCount:   "count",
	AggNUnique: "nunique",
	AggStd:     "std",
	AggFirst:   "first",
	AggLast:    "last",
}

func (f AggFunc) String() string {
	if name, ok := aggFuncNames[f]; ok {
		return name
	}
	return fmt.Sprintf("AggFunc(%d)", int(f))
}

// ParseAggFunc parses an aggregation name such as "sum" or "nunique"
func ParseAggFunc(s string) (AggFunc, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range aggFuncNames {
		if n == name {
			return f, nil
		}
	}
	if name == "average" {
		return AggMean, nil
	}
	return 0, fmt.Errorf("unknown aggregation %q", s)
}

// numericOnly reports whether the function needs numeric input
func (f AggFunc) numericOnly() bool {
	switch f {
	case AggSum, AggMean, AggMedian, AggStd:
		return true
	default:
		return false
	}
}

// zeroWhenEmpty reports whether an empty group yields 0 rather than missing
func (f AggFunc) zeroWhenEmpty() bool {
	return f == AggSum || f == AggCount || f == AggNUnique
}

// AggSpec applies Funcs to Column. Each result is named {Column}_{func}.
type AggSpec struct {
	Column string
	Funcs  []AggFunc
}

// Frequency is the bucket size of a time series resample
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Quarterly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "day"
	case Weekly:
		return "week"
	case Monthly:
		return "month"
	case Quarterly:
		return "quarter"
	case Yearly:
		return "year"
	default:
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
}

// ParseFrequency accepts names ("month") and pandas aliases ("M")
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "day", "daily":
		return Daily, nil
	case "w", "week", "weekly":
		return Weekly, nil
	case "m", "ms", "month", "monthly":
		return Monthly, nil
	case "q", "qs", "quarter", "quarterly":
		return Quarterly, nil
	case "y", "a", "ys", "year", "yearly", "annual":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("unknown frequency %q", s)
	}
}

// PeriodStart returns the first instant of the bucket holding t. Weeks start
// on Monday. The bucket follows the calendar date t carries in its own offset
// and is always expressed in UTC, so timestamps with mixed offsets share
// buckets.
func (f Frequency) PeriodStart(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := time.UTC
	switch f {
	case Weekly:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Quarterly:
		return time.Date(y, m-(m-1)%3, 1, 0, 0, 0, 0, loc)
	case Yearly:
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Next returns the start of the bucket following the one starting at start
func (f Frequency) Next(start time.Time) time.Time {
	switch f {
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	case Quarterly:
		return start.AddDate(0, 3, 0)
	case Yearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// FillMethod fills the missing aggregates of empty resample buckets
type FillMethod int

const (
	FillNone FillMethod = iota
	FillForward
	FillBackward
)

func (m FillMethod) String() string {
	switch m {
	case FillNone:
		return "none"
	case FillForward:
		return "ffill"
	case FillBackward:
		return "bfill"
	default:
		return fmt.Sprintf("FillMethod(%d)", int(m))
	}
}

// ParseFillMethod parses "", "none", "ffill" or "bfill"
func ParseFillMethod(s string) (FillMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FillNone, nil
	case "ffill", "forward":
		return FillForward, nil
	case "bfill", "backward":
		return FillBackward, nil
	default:
		return 0, fmt.Errorf("unknown fill method %q", s)
	}
}

// RankMetric orders the top products
type RankMetric int

const (
	RankByRevenue RankMetric = iota
	RankByQuantity
)

func (m RankMetric) String() string {
	switch m {
	case RankByRevenue:
		return "revenue"
	case RankByQuantity:
		return "quantity"
	default:
		return fmt.Sprintf("RankMetric(%d)", int(m))
	}
}

// ParseRankMetric parses "revenue" or "quantity"
func ParseRankMetric(s string) (RankMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "revenue":
		return RankByRevenue, nil
	case "quantity":
		return RankByQuantity, nil
	default:
		return 0, fmt.Errorf("unknown rank metric %q", s)
	}
}
