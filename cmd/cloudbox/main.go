package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cloudbox",
	Short: "CloudBox collaborative storage client and dev server",
	Long: `cloudbox hosts the CloudBox client core and its supporting services.

The serve command runs a local File/Folder Service (the dev server) over
a memory or badger store. The run command starts the client core for one
view: it talks to the service, joins the cross-process event relay, and
exposes state and actions to a local UI over the bridge API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
