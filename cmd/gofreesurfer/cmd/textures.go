package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
	"github.com/neurospin/gofreesurfer/pkg/provenance"
	"github.com/neurospin/gofreesurfer/pkg/stats"
)

// Textures aggregated across the cohort.
var texturePatterns = []string{
	"lh.sulc", "rh.sulc",
	"lh.curv", "rh.curv",
	"lh.curv.pial", "rh.curv.pial",
}

var texturesOpts struct {
	fsdir    string
	outdir   string
	icoOrder int
	keep     bool
	saveMode string
}

var texturesCmd = &cobra.Command{
	Use:   "textures",
	Short: "Aggregate the cohort surface textures into tables",
	Long: `Resamples the sulc and curvature textures of every reconstructed subject onto a
common icosahedron and stores the values in one table per texture under
<outdir>/textures.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if texturesOpts.outdir == "" {
			texturesOpts.outdir = texturesOpts.fsdir
		}

		return runTracked(cobraCmd.Context(), "textures", "", texturesOpts.fsdir, texturesOpts.outdir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("fsdir", texturesOpts.fsdir)
				rec.SetInput("outdir", texturesOpts.outdir)
				rec.SetInput("icoorder", texturesOpts.icoOrder)

				cfg := conversions.Config{FSConfig: fsconfig, SubjectsDir: texturesOpts.fsdir}

				for _, texture := range texturePatterns {
					tables, err := stats.Textures2Table(ctx, cfg, stats.TexturesOptions{
						FSDir:                  texturesOpts.fsdir,
						Pattern:                filepath.Join("*", "surf", texture),
						OutDir:                 texturesOpts.outdir,
						IcoOrder:               texturesOpts.icoOrder,
						KeepIndividualTextures: texturesOpts.keep,
						SaveMode:               texturesOpts.saveMode,
					})
					if err != nil {
						return fmt.Errorf("aggregating %s: %w", texture, err)
					}
					rec.SetOutput(texture, tables)
				}

				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(texturesCmd)

	texturesCmd.Flags().StringVarP(&texturesOpts.fsdir, "fsdir", "d", "", "the FreeSurfer processing home directory")
	texturesCmd.Flags().StringVarP(&texturesOpts.outdir, "outdir", "o", "", "the textures destination directory (default fsdir)")
	texturesCmd.Flags().IntVarP(&texturesOpts.icoOrder, "icoorder", "i", 7, "the icosahedral tesselation order, in [0, 7]")
	texturesCmd.Flags().BoolVarP(&texturesOpts.keep, "keep", "k", false, "keep the individual resampled textures")
	texturesCmd.Flags().StringVar(&texturesOpts.saveMode, "save", "csv", "table format: csv, json or all")
	texturesCmd.MarkFlagRequired("fsdir")
}
