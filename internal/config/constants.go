package config

// Application constants
const (
	AppName    = "SalesPulse"
	AppVersion = "1.0.0"

	// Upload handling
	UploadFormField = "file"
	CSVExtension    = ".csv"
	XLSXExtension   = ".xlsx"

	// Cache key namespace shared by every backend
	CacheKeyPrefix = "analysis"
)

// AllowedExtensions lists the file extensions accepted for upload
var AllowedExtensions = []string{CSVExtension, XLSXExtension}
