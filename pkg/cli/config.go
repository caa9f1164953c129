package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pagewire/internal/config"
	"github.com/vango-dev/pagewire/internal/errors"
)

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate configuration",
	}
	cmd.AddCommand(
		configInitCmd(configPath),
		configShowCmd(configPath),
		configValidateCmd(configPath),
	)
	return cmd
}

func configInitCmd(configPath *string) *cobra.Command {
	var (
		force    bool
		relayURL string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if config.Exists(path) && !force {
				return errors.New(errors.CodeInvalidConfig).
					WithDetail(path + " already exists.").
					WithSuggestion("Pass --force to overwrite it")
			}
			cfg := config.Default()
			cfg.Relay.URL = relayURL
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&relayURL, "relay", "", "Relay URL to write")
	return cmd
}

func configShowCmd(configPath *string) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the file and PAGEWIRE_*
environment overrides are applied. The API key is masked unless
--show-secrets is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !showSecrets && cfg.Relay.APIKey != "" {
				cfg.Relay.APIKey = mask(cfg.Relay.APIKey)
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the API key unmasked")
	return cmd
}

func configValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			source := cfg.Path()
			if source == "" {
				source = "environment"
			}
			success(cmd.OutOrStdout(), "Configuration is valid (%s)", source)
			return nil
		},
	}
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return fmt.Sprintf("%s****", secret[:4])
}
