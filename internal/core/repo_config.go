package core

// RepoConfig is the optional .review-warden.yml file at a repository root.
// It controls which files the indexer skips.
type RepoConfig struct {
	// Directory names skipped anywhere in the tree, e.g. ["dist", "docs"].
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// File extensions skipped. The leading dot is optional.
	ExcludeExts []string `yaml:"exclude_exts"`
}

// DefaultRepoConfig returns an empty configuration.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		ExcludeDirs: []string{},
		ExcludeExts: []string{},
	}
}
