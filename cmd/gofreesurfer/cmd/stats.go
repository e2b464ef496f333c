package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
	"github.com/neurospin/gofreesurfer/pkg/provenance"
	"github.com/neurospin/gofreesurfer/pkg/stats"
)

var statsOpts struct {
	fsdir   string
	outdir  string
	tracula bool
	summary bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate the cohort segmentation statistics into CSV tables",
	Long: `Collects the aparc surface statistics and the aseg volume statistics of
every reconstructed subject into per-measure CSV tables under
<outdir>/stats. The tracula pathway statistics can be aggregated too, and a
population summary with per-region mean and deviation can be derived from
the generated tables.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if statsOpts.outdir == "" {
			statsOpts.outdir = statsOpts.fsdir
		}

		return runTracked(cobraCmd.Context(), "stats", "", statsOpts.fsdir, statsOpts.outdir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("fsdir", statsOpts.fsdir)
				rec.SetInput("outdir", statsOpts.outdir)

				cfg := conversions.Config{FSConfig: fsconfig}

				aparc, err := stats.AparcStats2Table(ctx, cfg, statsOpts.fsdir, statsOpts.outdir)
				if err != nil {
					return fmt.Errorf("aggregating aparc stats: %w", err)
				}
				rec.SetOutput("aparc_tables", aparc)

				aseg, err := stats.AsegStats2Table(ctx, cfg, statsOpts.fsdir, statsOpts.outdir)
				if err != nil {
					return fmt.Errorf("aggregating aseg stats: %w", err)
				}
				rec.SetOutput("aseg_tables", aseg)

				if statsOpts.tracula {
					tract, err := stats.TractStats2Table(ctx, cfg, statsOpts.fsdir, statsOpts.outdir)
					if err != nil {
						return fmt.Errorf("aggregating tract stats: %w", err)
					}
					rec.SetOutput("tract_tables", tract)
				}

				if statsOpts.summary {
					statsdir := filepath.Join(statsOpts.outdir, "stats")
					summary, err := stats.PopulationSummary(statsdir, "")
					if err != nil {
						return fmt.Errorf("computing population summary: %w", err)
					}
					summaryFile := filepath.Join(statsdir, "population_summary.json")
					data, err := json.MarshalIndent(summary, "", "    ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(summaryFile, data, 0o644); err != nil {
						return err
					}
					rec.SetOutput("population_summary", summaryFile)
				}

				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsOpts.fsdir, "fsdir", "d", "", "the FreeSurfer processing home directory")
	statsCmd.Flags().StringVarP(&statsOpts.outdir, "outdir", "o", "", "the statistics destination directory (default fsdir)")
	statsCmd.Flags().BoolVar(&statsOpts.tracula, "tracula", false, "also aggregate the tracula pathway statistics")
	statsCmd.Flags().BoolVar(&statsOpts.summary, "summary", false, "derive the population summary from the generated tables")
	statsCmd.MarkFlagRequired("fsdir")
}
