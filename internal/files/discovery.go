package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"salespulse/internal/config"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery finds dataset files relative to a base directory
type Discovery struct {
	basePath   string
	extensions []string
}

// NewDiscovery creates a discovery for the uploadable dataset extensions
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath, extensions: config.AllowedExtensions}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

func (d *Discovery) isDataset(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range d.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FindDatasets lists the CSV and XLSX files directly inside dir, sorted by name
func (d *Discovery) FindDatasets(dir string) ([]FileInfo, error) {
	fullPath := d.resolve(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !d.isDataset(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Expand resolves command line arguments into dataset files. Each argument may
// be a file, a directory or a glob pattern; duplicates are dropped.
func (d *Discovery) Expand(args []string) ([]FileInfo, error) {
	seen := make(map[string]struct{})
	var files []FileInfo

	add := func(fi FileInfo) {
		if _, ok := seen[fi.Path]; ok {
			return
		}
		seen[fi.Path] = struct{}{}
		files = append(files, fi)
	}

	for _, arg := range args {
		path := d.resolve(arg)

		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				found, err := d.FindDatasets(path)
				if err != nil {
					return nil, err
				}
				for _, fi := range found {
					add(fi)
				}
				continue
			}
			add(FileInfo{Path: path, Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()})
			continue
		}

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() || !d.isDataset(match) {
				continue
			}
			add(FileInfo{Path: match, Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()})
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no dataset files matched %v", args)
	}
	return files, nil
}

// GetLatestFile returns the most recently modified file from a list
func GetLatestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}

	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) {
			latest = file
		}
	}

	return latest, true
}
