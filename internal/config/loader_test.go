package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "HEAD", opts.Ref)
	require.Equal(t, ModeByCommit, opts.ChangesetMode)
	require.Equal(t, ValidationSoft, opts.ValidationMode)
	require.Equal(t, 50, opts.MaxChangesetSize)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
changeset_mode: by_author_time
author_time_window_hours: 12
max_changeset_size: 80
skip_merge_commits: false
exclude_paths:
  - vendor/**
decay_half_life_days: 30
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	opts, err := Load(configPath)
	require.NoError(t, err)

	require.Equal(t, ModeByAuthorTime, opts.ChangesetMode)
	require.Equal(t, 12, opts.AuthorTimeWindowHours)
	require.Equal(t, 80, opts.MaxChangesetSize)
	require.False(t, opts.SkipMergeCommits)
	require.Equal(t, []string{"vendor/**"}, opts.ExcludePaths)
	require.Equal(t, 30, opts.DecayHalfLifeDays)

	// Untouched fields keep their defaults.
	require.Equal(t, 2, opts.ComponentDepth)
	require.Equal(t, 50, opts.TopKEdgesPerFile)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
