package units

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	directoryReadErrorTemplateConstant = "unable to read migration directory %s: %v"
)

// Default discovery settings for the property builder backend.
var (
	DefaultExtensions = []string{".js", ".cjs", ".mjs"}
	DefaultExclusions = []string{"sync-database.js", "create-site-visits-table.js"}
)

// DirectoryReadError reports that the discovery directory could not be listed. It is the
// only error that aborts a migration run.
type DirectoryReadError struct {
	Directory string
	Cause     error
}

// Error describes the unreadable directory.
func (failure *DirectoryReadError) Error() string {
	return fmt.Sprintf(directoryReadErrorTemplateConstant, failure.Directory, failure.Cause)
}

// Unwrap exposes the underlying filesystem error.
func (failure *DirectoryReadError) Unwrap() error {
	return failure.Cause
}

// DiscoveryOptions narrows the directory entries treated as migration units.
type DiscoveryOptions struct {
	Extensions []string
	Exclude    []string
}

// DefaultDiscoveryOptions returns the extension filter and exclusions used by the backend.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		Extensions: append([]string{}, DefaultExtensions...),
		Exclude:    append([]string{}, DefaultExclusions...),
	}
}

// FilesystemUnitDiscoverer lists migration units stored in a directory.
type FilesystemUnitDiscoverer struct{}

// NewFilesystemUnitDiscoverer constructs a discoverer backed by os.ReadDir.
func NewFilesystemUnitDiscoverer() *FilesystemUnitDiscoverer {
	return &FilesystemUnitDiscoverer{}
}

// DiscoverUnits implements unit discovery for the discoverer.
func (discoverer *FilesystemUnitDiscoverer) DiscoverUnits(directory string, options DiscoveryOptions) ([]string, error) {
	return DiscoverUnits(directory, options)
}

// DiscoverUnits returns the names of regular files in directory whose extension is recognised
// and whose name is not excluded. The order of the result follows the directory listing and
// carries no meaning; callers plan the execution order.
func DiscoverUnits(directory string, options DiscoveryOptions) ([]string, error) {
	entries, readError := os.ReadDir(directory)
	if readError != nil {
		return nil, &DirectoryReadError{Directory: directory, Cause: readError}
	}

	extensions := normalizeExtensions(options.Extensions)
	excluded := make(map[string]struct{}, len(options.Exclude))
	for _, exclusion := range options.Exclude {
		trimmed := strings.TrimSpace(exclusion)
		if len(trimmed) > 0 {
			excluded[trimmed] = struct{}{}
		}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if _, isExcluded := excluded[name]; isExcluded {
			continue
		}
		if _, recognised := extensions[strings.ToLower(filepath.Ext(name))]; !recognised {
			continue
		}

		names = append(names, name)
	}

	return names, nil
}

func normalizeExtensions(configured []string) map[string]struct{} {
	if len(configured) == 0 {
		configured = DefaultExtensions
	}
	extensions := make(map[string]struct{}, len(configured))
	for _, extension := range configured {
		trimmed := strings.ToLower(strings.TrimSpace(extension))
		if len(trimmed) == 0 {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		extensions[trimmed] = struct{}{}
	}
	return extensions
}
