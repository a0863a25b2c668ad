package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gitfold/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the gitfold config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long:  "Write the commented default config to --config, or to the user config path.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := initConfigFile(cfgFile, configForce)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user config path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := cfgFile
		if p == "" {
			p = config.DefaultConfigPath()
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func initConfigFile(p string, force bool) (string, error) {
	if p == "" {
		p = config.DefaultConfigPath()
	}
	if p == "" {
		return "", errors.New("no config path: set --config or $HOME")
	}
	if fileExists(p) && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", p)
	}
	if err := config.WriteDefaultConfig(p); err != nil {
		return "", err
	}
	return p, nil
}
