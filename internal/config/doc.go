// Package config provides centralized configuration management for SalesPulse.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SALES_<SECTION>_<FIELD>:
//
//	SALES_SERVER_PORT=8080
//	SALES_CACHE_BACKEND=redis
//	SALES_CACHE_REDIS_URL=redis://localhost:6379/0
//	SALES_CACHE_TTL=1h
//	SALES_VALIDATION_MISSING_THRESHOLD=50
//	SALES_CLEANING_OUTLIER_METHOD=zscore
//
// The configuration file is taken from SALES_CONFIG_FILE, or the first of
// config.yaml, configs/config.yaml and ../configs/config.yaml that exists.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
