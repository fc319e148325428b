package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mvsalign/pkg/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "mvsalign",
		Short: "Camera system alignment for MVS depth fusion",
		Long: `Computes the similarity transform between two camera systems
(e.g. an MVS network's cameras and a structure-from-motion reconstruction)
so that outputs of one can be compared or composed in the other's frame.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mvsalign.yaml", "YAML config file (defaults are used if it does not exist)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newAlignCmd())
	rootCmd.AddCommand(newCentersCmd())
	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newInitConfigCmd())
}

// loadConfig reads the --config file and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("mvsalign failed")
		os.Exit(1)
	}
}
