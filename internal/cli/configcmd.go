package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/coda/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// Never print credentials.
	if cfg.Provider.APIKey != "" {
		cfg.Provider.APIKey = "***"
	}

	fmt.Printf("Config file: %s\n\n", loader.GetConfigPath())
	fmt.Println(cfg.String())
	return nil
}
