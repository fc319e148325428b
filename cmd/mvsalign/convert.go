package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
	"mvsalign/pkg/camera"
	"mvsalign/pkg/config"
	"mvsalign/pkg/transform"
)

type convertOptions struct {
	DataPath   string
	Format     string
	Alignment  string
	OutputFile string
}

func newConvertCmd() *cobra.Command {
	opts := convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Write a camera system as a camera_pose.log",
		Long: `Reads the cameras of one system and writes their camera-to-world
matrices in the colmap camera_pose.log layout, one "i i 0" header per camera.
If an alignment transform is given it is left-multiplied onto every camera.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runConvert(cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.DataPath, "data_path", "d", "", "path to the camera data")
	f.StringVarP(&opts.Format, "format", "f", string(models.FormatMVSNet), "format of the camera data (mvsnet, colmap)")
	f.StringVarP(&opts.Alignment, "alignment", "a", "", "optional transform applied to every camera")
	f.StringVarP(&opts.OutputFile, "output_file", "o", "./data/"+camera.DefaultCOLMAPLogName, "where to write the camera log")
	cmd.MarkFlagRequired("data_path")
	return cmd
}

func runConvert(cfg *config.Config, opts convertOptions) error {
	format, err := models.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	cams, err := camera.NewParser(cfg.ParserOptions()).Parse(opts.DataPath, format)
	if err != nil {
		return fmt.Errorf("failed to load cameras: %w", err)
	}

	var prior mat.Matrix
	if opts.Alignment != "" {
		A, err := transform.Read(opts.Alignment)
		if err != nil {
			return fmt.Errorf("failed to load alignment: %w", err)
		}
		prior = A
	}

	if err := camera.WriteLogFile(opts.OutputFile, cams, prior); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"cameras": len(cams),
		"path":    opts.OutputFile,
	}).Info("wrote camera log")
	return nil
}
