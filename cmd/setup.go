package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/privaudit/pkg/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive advisor setup wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		ask := func(prompt string) string {
			fmt.Fprint(out, prompt)
			scanner.Scan()
			return strings.TrimSpace(scanner.Text())
		}

		fmt.Fprintln(out, "Welcome to the privaudit advisor setup")
		fmt.Fprintln(out, "--------------------------------------")

		fmt.Fprintln(out, "Step 1: Choose your AI Provider")
		fmt.Fprintln(out, "1. Gemini (Google)")
		fmt.Fprintln(out, "2. OpenAI")
		var provider string
		switch strings.ToLower(ask("Enter number or name > ")) {
		case "1", "gemini":
			provider = "gemini"
		case "2", "openai":
			provider = "openai"
		default:
			return errors.New("invalid provider choice")
		}

		fmt.Fprintf(out, "\nStep 2: Enter API Key for %s\n", provider)
		apiKey := ask("> ")
		if apiKey == "" {
			return errors.New("API key cannot be empty")
		}

		fmt.Fprintln(out, "\nStep 3: Validating key and fetching available models...")
		var selectedModel string
		models, err := listModels(cmd.Context(), provider, apiKey)
		if err != nil || len(models) == 0 {
			fmt.Fprintf(out, "Warning: Could not fetch models from API: %v\n", err)
			selectedModel = ask("Please enter model name manually (e.g. 'gemini-1.5-flash', 'gpt-4o') > ")
		} else {
			fmt.Fprintf(out, "Successfully retrieved %d models.\n", len(models))
			for i, m := range models {
				fmt.Fprintf(out, "%d. %s\n", i+1, m)
			}
			selIdx, err := strconv.Atoi(ask("Select Model (number) > "))
			if err != nil || selIdx < 1 || selIdx > len(models) {
				fmt.Fprintln(out, "Invalid selection. Using first available model.")
				selectedModel = models[0]
			} else {
				selectedModel = models[selIdx-1]
			}
		}

		fmt.Fprintln(out, "\nStep 4: Saving Configuration...")
		path, err := configPath()
		if err != nil {
			return err
		}
		cfg.Advisor.SelectedProvider = provider
		cfg.Advisor.SelectedModel = selectedModel
		cfg.SetAPIKey(provider, apiKey)
		if err := config.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintln(out, "--------------------------------------")
		fmt.Fprintln(out, "Setup Complete!")
		fmt.Fprintf(out, "Provider: %s\n", provider)
		fmt.Fprintf(out, "Model:    %s\n", selectedModel)
		fmt.Fprintln(out, "You can now run 'privaudit explain'")
		return nil
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
