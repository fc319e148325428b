package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mvsalign/pkg/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file with the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			logrus.WithField("path", path).Info("wrote default config")
			return nil
		},
	}
}
