// Package loader turns uploaded CSV and XLSX bytes into typed tables.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salespulse/internal/config"
	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/internal/validation"
	"salespulse/pkg/contracts/domain"
)

// Options tunes parsing. Zero values mean auto-detection.
type Options struct {
	// Delimiter overrides CSV delimiter sniffing
	Delimiter rune
	// Sheet selects an XLSX worksheet by name
	Sheet string
}

// Loader reads datasets after checking name and size
type Loader struct {
	logger *slog.Logger
	files  *validation.FileValidator
	opts   Options
}

// New creates a loader. A non-positive maxBytes disables the size limit.
func New(logger *slog.Logger, maxBytes int64, opts Options) *Loader {
	logger = infrastructure.WithComponent(logger, "loader")
	return &Loader{
		logger: logger,
		files:  validation.NewFileValidator(maxBytes, logger),
		opts:   opts,
	}
}

// Load parses raw according to the extension of filename
func (l *Loader) Load(raw []byte, filename string) (*domain.Table, error) {
	start := time.Now()

	if err := l.files.ValidateName(filename); err != nil {
		return nil, err
	}
	if err := l.files.ValidateSize(int64(len(raw))); err != nil {
		return nil, err
	}

	var (
		header []string
		rows   [][]string
		err    error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case config.XLSXExtension:
		header, rows, err = readXLSX(raw, l.opts.Sheet, l.logger)
	default:
		header, rows, err = readCSV(raw, l.opts.Delimiter, l.logger)
	}
	if err != nil {
		return nil, err
	}

	table, err := buildTable(header, rows)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Dataset loaded",
		slog.String("file", filename),
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()),
		slog.Duration("duration", time.Since(start)))
	return table, nil
}

// LoadFile reads a local dataset and returns its table with the raw bytes,
// which callers fingerprint for caching
func (l *Loader) LoadFile(path string) (*domain.Table, []byte, error) {
	if err := l.files.ValidateFile(path); err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	table, err := l.Load(raw, filepath.Base(path))
	if err != nil {
		return nil, nil, err
	}
	return table, raw, nil
}

// emptyError reports an upload without a header row
func emptyError() error {
	return apperrors.NewParsingError("file contains no header row", nil)
}
