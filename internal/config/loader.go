package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads analysis options from the given config file (YAML), falling back
// to .lfca/config.yaml in the working directory, then environment variables
// with the LFCA_ prefix. Missing file is not an error; defaults apply.
func Load(configPath string) (*Options, error) {
	// Load .env file if it exists (ignore errors - file is optional)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".lfca")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lfca"))
		}
	}

	v.SetEnvPrefix("LFCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// An explicitly named file that cannot be read is an error; the
			// default search path is allowed to come up empty.
			if configPath != "" {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	opts := Default()
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	opts.Normalize()
	return opts, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("ref", def.Ref)
	v.SetDefault("skip_merge_commits", def.SkipMergeCommits)
	v.SetDefault("find_renames_threshold", def.FindRenamesThreshold)
	v.SetDefault("max_changeset_size", def.MaxChangesetSize)
	v.SetDefault("max_logical_changeset_size", def.MaxLogicalChangesetSize)
	v.SetDefault("min_revisions", def.MinRevisions)
	v.SetDefault("min_cooccurrence", def.MinCooccurrence)
	v.SetDefault("changeset_mode", def.ChangesetMode)
	v.SetDefault("author_time_window_hours", def.AuthorTimeWindowHours)
	v.SetDefault("bulk_policy", def.BulkPolicy)
	v.SetDefault("topk_edges_per_file", def.TopKEdgesPerFile)
	v.SetDefault("component_depth", def.ComponentDepth)
	v.SetDefault("min_component_cooccurrence", def.MinComponentCooccurrence)
	v.SetDefault("hotspot_threshold", def.HotspotThreshold)
	v.SetDefault("validation_mode", def.ValidationMode)
	v.SetDefault("max_validation_issues", def.MaxValidationIssues)
}
