// Package app wires the SalesPulse HTTP service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, an optional YAML file and SALES_* variables
//  2. Initialize logging and OpenTelemetry
//  3. Open the result cache backend (memory, redis or badger)
//  4. Build the analysis and health services
//  5. Set up middleware and routes on a chi router
//
// A cache backend that cannot be opened is logged and replaced by a disabled
// cache; analyses keep working without memoization.
//
// # Usage
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
//
// Run returns when ctx is cancelled, after draining in-flight requests and
// closing the cache and telemetry providers.
package app
