// Package statistics computes descriptive and inferential statistics over
// domain tables.
//
// Distributions come from gonum (Student t, chi-square, normal) and moments
// from gonum/stat. Every failure is a typed error from internal/errors:
// INSUFFICIENT_DATA when a computation lacks values, columns or groups, and
// COMPUTATION for degenerate input such as zero variance. Results never
// carry NaN.
package statistics
