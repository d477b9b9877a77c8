package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastgit/fgit/internal/safety"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage fgit settings",
		Long: `View and modify ~/.fgit.conf. Keys use section.key notation, for example
proxy.url or downloader.min_file_size.`,
		Example: `  fgit settings show
  fgit settings set proxy.url http://127.0.0.1:7890`,
	}

	cmd.AddCommand(
		newSettingsShowCmd(),
		newSettingsSetCmd(),
	)

	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current settings",
		Long:  `Display the settings file as YAML.`,
		Args:  cobra.NoArgs,
		RunE:  settingsShowRun,
	}
}

func settingsShowRun(cmd *cobra.Command, args []string) error {
	fmt.Printf("Settings (%s)\n", globalCfg.Path())
	fmt.Println("========")
	if len(globalCfg.SectionNames()) == 0 {
		fmt.Println("No settings saved.")
		return nil
	}

	data, err := globalCfg.YAML()
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	return nil
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a setting",
		Long: `Set a value using section.key notation. Changes are written back to the
settings file.

Examples:
  proxy.url http://127.0.0.1:7890
  downloader.chunk_size 8192
  downloader.min_file_size 100`,
		Args: cobra.ExactArgs(2),
		RunE: settingsSetRun,
	}
}

func settingsSetRun(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	var err error
	if name, ok := strings.CutPrefix(key, "proxy."); ok {
		if name == "url" && value != "" {
			if _, err := safety.ValidateProxyURL(value); err != nil {
				return err
			}
		}
		err = globalCfg.SaveProxy(map[string]string{name: value})
	} else {
		err = globalCfg.Set(key, value)
	}
	if err != nil {
		return err
	}
	slog.Default().Info("setting saved", "key", key)
	return nil
}
