package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/lfca/internal/config"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	dataDir string
	verbose bool
	logger  *logrus.Logger
	opts    *config.Options
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lfca",
	Short: "LFCA - Logical file coupling analysis for git repositories",
	Long: `LFCA mines a git repository's commit history into a logical coupling
graph: which files change together, how strongly, and how that coupling
evolves over time.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		opts, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			opts = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .lfca/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "artifact directory (default: ~/.lfca/<repo>)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`LFCA {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(hotspotsCmd)
	rootCmd.AddCommand(configCmd)
}

// repoPaths resolves the artifact layout for a repo argument.
func repoPaths(repoPath string) config.Paths {
	if dataDir != "" {
		return config.Paths{DataDir: dataDir}
	}
	return config.DefaultPaths(baseName(repoPath))
}

func baseName(p string) string {
	cleaned := p
	for len(cleaned) > 0 && cleaned[len(cleaned)-1] == '/' {
		cleaned = cleaned[:len(cleaned)-1]
	}
	for i := len(cleaned) - 1; i >= 0; i-- {
		if cleaned[i] == '/' {
			return cleaned[i+1:]
		}
	}
	return cleaned
}
