package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/privaudit/pkg/advisor"
	"github.com/user/privaudit/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration (scan paths, advisor provider, keys)",
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		masked := *cfg
		masked.Advisor.Providers = make(map[string]config.ProviderConfig, len(cfg.Advisor.Providers))
		for name, p := range cfg.Advisor.Providers {
			masked.Advisor.Providers[name] = config.ProviderConfig{APIKey: maskKey(p.APIKey)}
		}
		data, err := yaml.Marshal(&masked)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file holding the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := config.SaveConfig(path, config.NewDefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Manually set API key for a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")

		if provider == "" || key == "" {
			return errors.New("--provider and --key are required")
		}

		path, err := configPath()
		if err != nil {
			return err
		}
		cfg.SetAPIKey(strings.ToLower(provider), key)
		if err := config.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key saved for provider: %s\n", provider)
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model",
	Short: "Manually set the active provider and model",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		if provider != "" {
			cfg.Advisor.SelectedProvider = strings.ToLower(provider)
		}
		if model != "" {
			cfg.Advisor.SelectedModel = model
		}

		path, err := configPath()
		if err != nil {
			return err
		}
		if err := config.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active configuration updated: Provider=%s, Model=%s\n",
			cfg.Advisor.SelectedProvider, cfg.Advisor.SelectedModel)
		return nil
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List available models from the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := cfg.Advisor.SelectedProvider
		if provider == "" {
			return errors.New("no provider selected, run 'privaudit config setup'")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fetching models for %s...\n", provider)
		models, err := listModels(cmd.Context(), provider, cfg.GetAPIKey(provider))
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nAvailable Models (%s):\n", provider)
		for _, m := range models {
			mark := " "
			if m == cfg.Advisor.SelectedModel {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, m)
		}
		return nil
	},
}

func listModels(ctx context.Context, provider, apiKey string) ([]string, error) {
	p, err := advisor.NewProvider(ctx, provider, apiKey, "")
	if err != nil {
		return nil, fmt.Errorf("initializing provider: %w", err)
	}
	if closer, ok := p.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	return p.ListModels(ctx)
}

func init() {
	providers := strings.Join(advisor.Providers, ", ")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	setKeyCmd.Flags().StringP("provider", "p", "", "Provider ("+providers+")")
	setKeyCmd.Flags().StringP("key", "k", "", "API Key")

	setModelCmd.Flags().StringP("provider", "p", "", "Provider ("+providers+")")
	setModelCmd.Flags().StringP("model", "m", "", "Model name")

	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(listModelsCmd)
	rootCmd.AddCommand(configCmd)
}
