// Package shared provides common utilities and test helpers used across the
// SalesPulse codebase.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//   - BufferedSlogHandler, a slog.Handler that captures records for assertions
//   - Sales fixtures: a deterministic transaction dataset as a typed table or CSV upload
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    table := testutil.DefaultSalesTable()
//	    // ...
//	    testutil.AssertNoErrors(t, logs)
//	}
//
// This package should only contain helpers used by more than one package and
// must not import business logic packages.
package shared
