package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write an example config file",
	Long:  `Writes a commented example config to the --config path (or the default location). An existing file is left untouched.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.SaveExampleConfig(configPath)
		if err != nil {
			return err
		}
		cmd.Printf("Config file: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
}
