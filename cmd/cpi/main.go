package main

import (
	"context"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/go-sod/cpi/internal/buildinfo"
	"github.com/go-sod/cpi/internal/dataset"
	"github.com/go-sod/cpi/internal/experiment"
	"github.com/go-sod/cpi/internal/logging"
)

var (
	configPath string
	dump       bool
	output     string

	rootCmd = &cobra.Command{
		Use:          "cpi",
		Short:        "Fit a conformal method and score its prediction intervals",
		SilenceUsage: true,
		RunE:         runExperiment,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Info.Print("cpi"))
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "experiment.toml", "experiment file")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "print the resolved experiment before running it")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "write test intervals to this CSV file, overrides the experiment")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	ctx := logging.WithLogger(context.Background(), logging.DefaultLogger())
	out := cmd.OutOrStdout()

	cfg, err := experiment.Load(configPath)
	if err != nil {
		return err
	}
	if output != "" {
		cfg.Output = output
	}
	if dump {
		spew.Fdump(out, cfg)
	}

	res, err := experiment.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "method:    %s\n", res.Method)
	fmt.Fprintf(out, "alpha:     %v\n", res.Alpha)
	fmt.Fprintf(out, "train:     %d\n", res.Train)
	fmt.Fprintf(out, "test:      %d\n", res.Report.Points)
	fmt.Fprintf(out, "fit time:  %v\n", res.FitTime)
	fmt.Fprintf(out, "coverage:  %.4f\n", res.Report.Coverage)
	fmt.Fprintf(out, "ace:       %+.4f\n", res.Report.ACE)
	fmt.Fprintf(out, "sharpness: %.4f\n", res.Report.Sharpness)

	if cfg.Output == "" {
		return nil
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := dataset.WriteIntervals(f, res.YTest, res.Prediction); err != nil {
		_ = f.Close()
		return fmt.Errorf("write intervals: %w", err)
	}
	return f.Close()
}
