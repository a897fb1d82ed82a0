package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/wikichat/internal/config"
)

// wizardProviders are offered by init, groq first as the default.
var wizardProviders = []string{"groq", "openai", "anthropic", "deepseek", "kimi", "qwen", "glm"}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up wikichat: choose a provider, enter your API key, pick a storage backend and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("get home dir: %w", err)
				}
				path = p
			}
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), path)
		},
	}
}

func runInit(in io.Reader, out io.Writer, configPath string) error {
	reader := bufio.NewReader(in)
	prompt := func(format string, a ...any) string {
		fmt.Fprintf(out, format, a...)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	fmt.Fprintln(out, "Welcome to the wikichat configuration wizard!")
	fmt.Fprintln(out)

	// Provider selection
	fmt.Fprintln(out, "Available providers:")
	for i, p := range wizardProviders {
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, p, config.KnownProviderModels[p])
	}
	selectedIdx := 0
	if input := prompt("\nSelect provider (1-%d) [1]: ", len(wizardProviders)); input != "" {
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(wizardProviders) {
			selectedIdx = n - 1
		}
	}
	providerName := wizardProviders[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", providerName)

	// API key
	apiKey := prompt("Enter API key for %s: ", providerName)
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	backend := "file"
	if strings.HasPrefix(strings.ToLower(prompt("Storage backend (file/sqlite) [file]: ")), "s") {
		backend = "sqlite"
	}

	cfg := config.DefaultConfig()
	cfg.Provider = providerName
	cfg.Providers[providerName] = &config.ProviderConfig{APIKey: apiKey}
	cfg.Storage.Backend = backend

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "\nConfig file already exists at %s\n", configPath)
		if strings.ToLower(prompt("Overwrite? [y/N]: ")) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfig saved to %s\n", configPath)
	fmt.Fprintln(out, "You can now run: wikichat")
	return nil
}
