package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	tildeSymbolConstant             = "~"
	tildeForwardSlashPrefixConstant = "~/"
)

var tildeWithPathSeparatorPrefix = tildeSymbolConstant + string(os.PathSeparator)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// DirectoryResolver turns configured migration and script directories into absolute paths.
// Leading tildes expand to the user's home directory; relative paths are anchored at the base directory.
type DirectoryResolver struct {
	baseDirectory         string
	homeDirectoryProvider HomeDirectoryProvider
	homeDirectory         string
	homeDirectoryError    error
	initializationGuard   sync.Once
}

// NewDirectoryResolver constructs a DirectoryResolver anchored at baseDirectory using the operating system home lookup.
func NewDirectoryResolver(baseDirectory string) *DirectoryResolver {
	return NewDirectoryResolverWithProvider(baseDirectory, os.UserHomeDir)
}

// NewDirectoryResolverWithProvider constructs a DirectoryResolver with a custom home directory provider.
func NewDirectoryResolverWithProvider(baseDirectory string, provider HomeDirectoryProvider) *DirectoryResolver {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &DirectoryResolver{baseDirectory: strings.TrimSpace(baseDirectory), homeDirectoryProvider: provider}
}

// Resolve expands and anchors candidatePath. Empty input resolves to the base directory.
func (resolver *DirectoryResolver) Resolve(candidatePath string) string {
	if resolver == nil {
		return candidatePath
	}

	trimmedPath := strings.TrimSpace(candidatePath)
	if len(trimmedPath) == 0 {
		return filepath.Clean(resolver.baseDirectory)
	}

	expandedPath := resolver.expandHome(trimmedPath)
	if filepath.IsAbs(expandedPath) || len(resolver.baseDirectory) == 0 {
		return filepath.Clean(expandedPath)
	}

	return filepath.Join(resolver.baseDirectory, expandedPath)
}

func (resolver *DirectoryResolver) expandHome(candidatePath string) string {
	if !strings.HasPrefix(candidatePath, tildeSymbolConstant) {
		return candidatePath
	}

	resolvedHomeDirectory := resolver.resolveHomeDirectory()
	if len(resolvedHomeDirectory) == 0 {
		return candidatePath
	}

	if candidatePath == tildeSymbolConstant {
		return resolvedHomeDirectory
	}

	if strings.HasPrefix(candidatePath, tildeForwardSlashPrefixConstant) {
		return filepath.Join(resolvedHomeDirectory, strings.TrimPrefix(candidatePath, tildeForwardSlashPrefixConstant))
	}

	if tildeWithPathSeparatorPrefix != tildeForwardSlashPrefixConstant && strings.HasPrefix(candidatePath, tildeWithPathSeparatorPrefix) {
		return filepath.Join(resolvedHomeDirectory, strings.TrimPrefix(candidatePath, tildeWithPathSeparatorPrefix))
	}

	return candidatePath
}

func (resolver *DirectoryResolver) resolveHomeDirectory() string {
	resolver.initializationGuard.Do(func() {
		resolver.homeDirectory, resolver.homeDirectoryError = resolver.homeDirectoryProvider()
	})
	if resolver.homeDirectoryError != nil {
		return ""
	}
	return resolver.homeDirectory
}
