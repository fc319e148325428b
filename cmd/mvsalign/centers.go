package main

import (
	"os"

	"github.com/spf13/cobra"

	"mvsalign/internal/models"
	"mvsalign/pkg/camera"
	"mvsalign/pkg/config"
	"mvsalign/pkg/report"
)

func newCentersCmd() *cobra.Command {
	var path, format, output string
	cmd := &cobra.Command{
		Use:   "centers",
		Short: "Print the camera centers of one camera system as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rows, err := loadCenters(cfg, path, format)
			if err != nil {
				return err
			}
			if output == "" {
				return report.Write(os.Stdout, rows)
			}
			return report.WriteFile(output, rows)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "camera directory or log file")
	cmd.Flags().StringVarP(&format, "format", "f", string(models.FormatMVSNet), "camera format (mvsnet, colmap)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV file to write (stdout if empty)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func loadCenters(cfg *config.Config, path, format string) ([]report.CenterRow, error) {
	f, err := models.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	cams, err := camera.NewParser(cfg.ParserOptions()).Parse(path, f)
	if err != nil {
		return nil, err
	}
	centers, err := camera.Centers(cams)
	if err != nil {
		return nil, err
	}
	return report.Centers(cams, centers)
}
