package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
	"mvsalign/pkg/alignment"
	"mvsalign/pkg/camera"
	"mvsalign/pkg/config"
	"mvsalign/pkg/report"
	"mvsalign/pkg/transform"
	"mvsalign/pkg/visualization"
)

// alignOptions are the inputs of one alignment run.
type alignOptions struct {
	DataPath1   string
	DataPath2   string
	Format1     string
	Format2     string
	Alignment   string
	OutputFile  string
	ScaleMethod string
	Pairing     string
	ReportFile  string
	PlotFile    string
	PlotDir     string
}

func newAlignCmd() *cobra.Command {
	opts := alignOptions{}
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Compute the transform from camera system 1 to camera system 2",
		Long: `Computes the transformation between two camera systems. If an
alignment file for system 2 -> W is given it is left-multiplied onto the
estimate, producing system 1 -> system 2 -> W. An identity transform named
identity_trans.txt is always written next to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg, &opts)
			_, err = runAlign(cfg, opts)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.DataPath1, "data_path_1", "a", "", "path to the camera data of the first system")
	f.StringVarP(&opts.DataPath2, "data_path_2", "b", "", "path to the camera data of the second system")
	f.StringVarP(&opts.Format1, "format_1", "f", "", "format of the first system (mvsnet, colmap)")
	f.StringVarP(&opts.Format2, "format_2", "g", "", "format of the second system (mvsnet, colmap)")
	f.StringVarP(&opts.Alignment, "alignment", "t", "", "optional transform from system 2 to another frame")
	f.StringVarP(&opts.OutputFile, "output_file", "o", "./data/default_transform.txt", "where to write the transform")
	f.StringVar(&opts.ScaleMethod, "scale", "", "scale method (median, baseline)")
	f.StringVar(&opts.Pairing, "pairing", "", "camera correspondence (id, position)")
	f.StringVar(&opts.ReportFile, "report", "", "optional per-camera residual CSV")
	f.StringVar(&opts.PlotFile, "plot", "", "optional top-down plot of the aligned centers")
	f.StringVar(&opts.PlotDir, "plot-dir", "", "optional directory for plots along all three axes")
	cmd.MarkFlagRequired("data_path_1")
	cmd.MarkFlagRequired("data_path_2")
	return cmd
}

// applyFlagOverrides fills unset options from cfg and pushes set flags into cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, opts *alignOptions) {
	if opts.Format1 == "" {
		opts.Format1 = cfg.Input.Format1
	}
	if opts.Format2 == "" {
		opts.Format2 = cfg.Input.Format2
	}
	if cmd.Flags().Changed("scale") {
		cfg.Alignment.ScaleMethod = opts.ScaleMethod
	}
	if cmd.Flags().Changed("pairing") {
		cfg.Alignment.Pairing = opts.Pairing
	}
	if opts.ReportFile == "" {
		opts.ReportFile = cfg.Output.ReportFile
	}
	if opts.PlotFile == "" {
		opts.PlotFile = cfg.Output.PlotFile
	}
	if opts.PlotDir == "" {
		opts.PlotDir = cfg.Output.PlotDir
	}
}

// runAlign parses both systems, estimates the transform and writes the
// outputs. Nothing is written if loading or estimation fails.
func runAlign(cfg *config.Config, opts alignOptions) (*mat.Dense, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format1, err := models.ParseFormat(opts.Format1)
	if err != nil {
		return nil, err
	}
	format2, err := models.ParseFormat(opts.Format2)
	if err != nil {
		return nil, err
	}

	parser := camera.NewParser(cfg.ParserOptions())
	cams1, err := parser.Parse(opts.DataPath1, format1)
	if err != nil {
		return nil, fmt.Errorf("failed to load system 1 cameras: %w", err)
	}
	cams2, err := parser.Parse(opts.DataPath2, format2)
	if err != nil {
		return nil, fmt.Errorf("failed to load system 2 cameras: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"system1": len(cams1),
		"system2": len(cams2),
	}).Info("loaded cameras")

	var prior mat.Matrix
	if opts.Alignment != "" {
		A, err := transform.Read(opts.Alignment)
		if err != nil {
			return nil, fmt.Errorf("failed to load alignment: %w", err)
		}
		prior = A
	}

	params := cfg.AlignmentParams()
	params.Logger = logrus.StandardLogger()
	estimator := alignment.NewEstimator(params)
	M, err := estimator.Estimate(cams1, cams2, prior)
	if err != nil {
		return nil, fmt.Errorf("alignment failed: %w", err)
	}

	metrics := estimator.GetMetrics()
	logrus.WithFields(logrus.Fields{
		"scale":        metrics.Scale,
		"rotation_deg": metrics.RotationDeg,
		"rmse":         metrics.RMSE,
		"max_residual": metrics.MaxResidual,
	}).Info("alignment metrics")
	logrus.Debugf("Resulting Transformation:\n%v", mat.Formatted(M))

	if err := transform.Write(M, opts.OutputFile); err != nil {
		return nil, err
	}
	logrus.WithField("path", opts.OutputFile).Info("wrote transform")

	if opts.ReportFile != "" {
		if err := report.WriteFile(opts.ReportFile, report.Residuals(estimator.Pairs())); err != nil {
			return nil, err
		}
		logrus.WithField("path", opts.ReportFile).Info("wrote residual report")
	}
	if opts.PlotFile != "" {
		viewer := visualization.NewViewer(estimator.Pairs(), false)
		if err := viewer.SavePlot("z", opts.PlotFile); err != nil {
			return nil, err
		}
		logrus.WithField("path", opts.PlotFile).Info("wrote alignment plot")
	}
	if opts.PlotDir != "" {
		viewer := visualization.NewViewer(estimator.Pairs(), true)
		if err := viewer.SavePlotSequence(opts.PlotDir); err != nil {
			return nil, err
		}
		logrus.WithField("dir", opts.PlotDir).Info("wrote alignment plots")
	}
	return M, nil
}
