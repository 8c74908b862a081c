// Package validation checks sales and customer tables before they enter the
// analysis pipeline.
//
// A Validator accumulates every finding of a run into one
// domain.ValidationReport: missing columns, type mismatches, excessive
// missing values, duplicate rows, out-of-range values and row floors.
// Quality findings are warnings unless strict mode is enabled. FileValidator
// guards uploads by name and size before they are parsed.
package validation
