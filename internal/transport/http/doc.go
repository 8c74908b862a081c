// Package http implements the HTTP handlers of the SalesPulse service.
// Handlers parse uploads and query parameters, call the services and render
// JSON; they hold no analysis logic.
//
// # Endpoints
//
//	POST   /api/v1/analyze              multipart "file"; use_cache, top_n, ttl
//	POST   /api/v1/validate             multipart "file"
//	POST   /api/v1/statistics           multipart "file"; use_cache, ttl
//	POST   /api/v1/cohorts              multipart "file"; customer_column
//	GET    /api/v1/cache/stats
//	DELETE /api/v1/cache
//	DELETE /api/v1/cache/{fingerprint}
//	GET    /healthz
//
// # Errors
//
// Every failure is rendered as RFC 7807 problem details by errors.ErrorHandler.
// Pipeline errors keep their type in "error_code"; a dataset rejected by
// validation answers 422 with the report under details.validation_report.
package http
