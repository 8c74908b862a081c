package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"salespulse/internal/config"
	apperrors "salespulse/internal/errors"
)

// FileValidator checks uploaded or local dataset files before they are parsed
type FileValidator struct {
	logger   *slog.Logger
	maxBytes int64
}

// NewFileValidator creates a new file validator. A non-positive maxBytes disables the size check.
func NewFileValidator(maxBytes int64, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// ValidateName checks that a file name has a supported dataset extension
func (v *FileValidator) ValidateName(name string) error {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Rejecting temporary office file",
			slog.String("file", name))
		return apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("file %s is a temporary Excel file", base), nil)
	}

	ext := strings.ToLower(filepath.Ext(base))
	if !slices.Contains(config.AllowedExtensions, ext) {
		v.logger.Warn("Unsupported file extension",
			slog.String("file", name),
			slog.String("extension", ext))
		return apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("unsupported file type %q, expected one of %s", ext, strings.Join(config.AllowedExtensions, ", ")), nil).
			WithContext("extension", ext)
	}

	return nil
}

// ValidateSize checks a payload size against the configured limit
func (v *FileValidator) ValidateSize(size int64) error {
	if size == 0 {
		return apperrors.NewAppError(apperrors.ErrTypeValidation, "file is empty", nil)
	}
	if v.maxBytes > 0 && size > v.maxBytes {
		v.logger.Warn("File exceeds size limit",
			slog.Int64("size", size),
			slog.Int64("max_bytes", v.maxBytes))
		return apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("file size %d exceeds the limit of %d bytes", size, v.maxBytes), nil).
			WithContext("size", size).
			WithContext("max_bytes", v.maxBytes)
	}
	return nil
}

// ValidateFile checks that a local path is a readable dataset file within the size limit
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return apperrors.NewNotFoundError(fmt.Sprintf("file %s", path))
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("%s is a directory, not a file", path), nil)
	}

	if err := v.ValidateName(path); err != nil {
		return err
	}
	if err := v.ValidateSize(info.Size()); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}
