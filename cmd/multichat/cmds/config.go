package cmds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
	"gopkg.in/yaml.v3"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change the provider configuration",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetProviderCommand())
	cmd.AddCommand(newConfigSetCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration, with API keys masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			cfg := app.Configuration()
			reveal, _ := cmd.Flags().GetBool("reveal-keys")
			if !reveal {
				for _, pc := range cfg.Providers {
					pc.APIKey = maskKey(pc.APIKey)
				}
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n%s", configPath(), app.ActiveProviderLabel(), b)
			return nil
		},
	}
	cmd.Flags().Bool("reveal-keys", false, "Print API keys in full")
	return cmd
}

func newConfigSetProviderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-provider PROVIDER",
		Short: "Switch the active provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.ParseProviderID(args[0])
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.SetActiveProvider(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.ActiveProviderLabel())
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set PROVIDER KEY [VALUE]",
		Short: "Set api_key, base_url, model, system_prompt or temperature of a provider",
		Long:  "Without VALUE the value is read from the terminal, masked for api_key.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.ParseProviderID(args[0])
			if err != nil {
				return err
			}
			value := ""
			if len(args) == 3 {
				value = args[2]
			} else {
				value, err = askValue(cmd, id, args[1])
				if err != nil {
					return err
				}
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			cfg := app.Configuration()
			if err := setField(cfg.Provider(id), args[1], value); err != nil {
				return err
			}
			return app.SetConfiguration(cmd.Context(), cfg)
		},
	}
}

func askValue(cmd *cobra.Command, id types.ProviderID, key string) (string, error) {
	ui := &input.UI{Writer: cmd.OutOrStdout(), Reader: cmd.InOrStdin()}
	return ui.Ask(fmt.Sprintf("%s %s", id, key), &input.Options{
		Required:  true,
		HideOrder: true,
		Loop:      true,
		Mask:      strings.ReplaceAll(key, "-", "_") == "api_key",
	})
}

func setField(pc *settings.ProviderConfig, key string, value string) error {
	if pc == nil {
		return errors.New("provider has no settings")
	}
	switch strings.ReplaceAll(key, "-", "_") {
	case "api_key":
		pc.APIKey = value
	case "base_url":
		pc.BaseURL = value
	case "model":
		pc.Model = value
	case "system_prompt":
		pc.SystemPrompt = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrap(err, "temperature must be a number")
		}
		pc.Temperature = t
	default:
		return errors.Errorf("unknown setting %s", key)
	}
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
