// Package files locates sales dataset files on disk for batch analysis.
//
// Example usage:
//
//	discovery := files.NewDiscovery("")
//	datasets, err := discovery.Expand([]string{"exports/", "archive/*.csv"})
package files
