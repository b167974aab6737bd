package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recall-chat/recall/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Recall %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: not loadable (%v)\n", err)
		return nil
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Temperature: %.2f\n", cfg.Temperature)
	fmt.Printf("  Max tokens: %d\n", cfg.MaxTokens)
	fmt.Printf("  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Printf("  Server: %s\n", cfg.ServerAddr)

	if key := os.Getenv("GEMINI_API_KEY"); key != "" && len(key) >= 8 {
		fmt.Printf("  GEMINI_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
	} else {
		fmt.Println("  GEMINI_API_KEY: Not set")
	}
	if cfg.SearchAPIKey != "" {
		fmt.Println("  Web search: enabled")
	} else {
		fmt.Println("  Web search: disabled (no search_api_key)")
	}

	return nil
}
