// Package services implements the business logic layer of SalesPulse.
// Handlers and the CLI call services; services call the pipeline packages.
//
// # Available Services
//
//	- AnalysisService: load, validate, clean, then aggregate and describe an upload
//	- HealthService: liveness and cache backend status
//
// # Analysis Flow
//
//	raw bytes -> fingerprint -> [full result cached?] -> loader -> validator
//	          -> cleaner -> kpis | by_category | by_city | by_source
//	                      | top_products | trend | stats -> full result
//
// Every sub-result goes through cache.GetOrCompute under
// analysis:{fingerprint}:{kind}. A sub-analysis that fails for the dataset
// (a missing date column, for example) is reported in Warnings and the
// remaining results are still returned.
//
// # Error Handling
//
// Services return *errors.AppError values. A dataset that fails validation
// yields a VALIDATION error whose context carries the full report under
// "validation_report", which the HTTP layer returns to the client.
//
// # Usage
//
//	svc, err := services.NewAnalysisService(cfg, resultCache, metrics, logger)
//	result, err := svc.Analyze(ctx, raw, "sales.csv", svc.DefaultOptions())
package services
