package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/safelens/safelens/pkg/config"
)

func newSettingsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "settings",
		Short: "Manage SafeLens's local settings file",
	}
	root.AddCommand(newSettingsInitCmd())
	root.AddCommand(newSettingsShowCmd())
	return root
}

func newSettingsInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := settingsPath
			if path == "" {
				path = "safelens.yaml"
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default settings to %s\n", path)
			return nil
		},
	}
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged, resolved settings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
