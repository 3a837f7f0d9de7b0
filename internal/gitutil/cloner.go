// Package gitutil clones repositories and reads their files for indexing.
package gitutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/rag"
)

// Client handles interacting with Git repositories.
type Client struct {
	Logger  *slog.Logger
	baseDir string
}

// NewClient returns a new Client that clones below baseDir, or the system
// temp directory when baseDir is empty.
func NewClient(baseDir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Logger: logger, baseDir: baseDir}
}

// CloneTemp shallow-clones repoURL into a fresh temporary directory and
// returns its path with a cleanup function.
func (c *Client) CloneTemp(ctx context.Context, repoURL, token string) (string, func(), error) {
	if c.baseDir != "" {
		if err := os.MkdirAll(c.baseDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create clone directory: %w", err)
		}
	}
	repoPath, err := os.MkdirTemp(c.baseDir, "review-warden-repo-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() {
		if removeErr := os.RemoveAll(repoPath); removeErr != nil {
			c.Logger.Error("failed to remove temp repo", "path", repoPath, "error", removeErr)
		}
	}

	opts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
	}
	if token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: token}
	}

	c.Logger.InfoContext(ctx, "cloning repository", "url", repoURL, "path", repoPath)
	if _, err := git.PlainCloneContext(ctx, repoPath, false, opts); err != nil {
		cleanup()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", nil, err
		}
		return "", nil, core.Transient(fmt.Errorf("git clone of %s failed: %w", repoURL, err))
	}
	return repoPath, cleanup, nil
}

// LoadLimits bounds what LoadFiles reads. A zero field disables that limit.
type LoadLimits struct {
	// MaxFileSize skips any single file larger than this many bytes.
	MaxFileSize int64
	// MaxTotalSize caps the summed content of all returned files. Files that
	// would push the total over it are skipped.
	MaxTotalSize int64
}

// LoadFiles walks root in lexical order and returns the indexable text files
// within limits. Directory and extension exclusions come from the
// repository's own config file when present.
func (c *Client) LoadFiles(root string, limits LoadLimits) ([]rag.File, error) {
	repoConfig, err := config.LoadRepoConfig(root)
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		repoConfig = core.DefaultRepoConfig()
	case err != nil:
		c.Logger.Warn("ignoring invalid repository config", "path", root, "error", err)
		repoConfig = core.DefaultRepoConfig()
	}
	excludeDirs := append(append([]string{".git"}, rag.DefaultExcludeDirs...), repoConfig.ExcludeDirs...)

	var (
		files   []rag.File
		total   int64
		skipped int
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && rag.IsExcludedDir(d.Name(), excludeDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rag.IsExcludedExt(d.Name(), repoConfig.ExcludeExts) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if limits.MaxFileSize > 0 && info.Size() > limits.MaxFileSize {
			c.Logger.Debug("skipping large file", "path", path, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !rag.IsIndexable(rel, content) {
			return nil
		}
		size := int64(len(content))
		if limits.MaxTotalSize > 0 && total+size > limits.MaxTotalSize {
			skipped++
			return nil
		}
		total += size
		files = append(files, rag.File{Path: rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if skipped > 0 {
		c.Logger.Warn("repository exceeds the total index size, some files were skipped",
			"path", root, "loaded_bytes", total, "skipped_files", skipped, "max_total_size", limits.MaxTotalSize)
	}
	return files, nil
}
