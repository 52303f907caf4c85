// Package main provides the CLI entry point for the workforce runtime.
//
// The runtime accepts natural-language goals, plans them with an LLM,
// and drives the resulting tool invocations under a policy-governed
// approval regime.
//
// # Basic Usage
//
// Start the runtime:
//
//	workforce serve --config workforce.yaml
//
// Run a single goal to completion:
//
//	workforce run "summarize the files in ~/projects/notes"
//
// # Environment Variables
//
//   - WORKFORCE_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - GOOGLE_API_KEY: Google Gemini API key
//   - PERPLEXITY_API_KEY: Perplexity API key
//   - QWEN_API_KEY: Qwen (DashScope) API key
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "workforce",
		Short: "Autonomous desktop workforce runtime",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("WORKFORCE_CONFIG"), "path to configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("workforce %s (%s)\n", version, commit)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
