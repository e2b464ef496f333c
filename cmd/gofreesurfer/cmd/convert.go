package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
	"github.com/neurospin/gofreesurfer/pkg/provenance"
)

// Volumes exported to NIfTI for each subject.
var convertModalities = []string{"aparc+aseg", "aparc.a2009s+aseg", "aseg", "wm", "rawavg"}

var convertOpts struct {
	fsdir     string
	subjectID string
	outdir    string
	erase     bool
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Export a reconstructed subject to NIfTI and resampled surfaces",
	Long: `Converts the segmentation volumes of one reconstructed subject to NIfTI in
the native anatomical space, computes the conformed to native registration
matrix and resamples the white and pial surfaces onto icosahedra of orders
4 to 7. Outputs land under <outdir>/<subjectid>/convert.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		subjdir := filepath.Join(convertOpts.fsdir, convertOpts.subjectID)
		info, err := os.Stat(subjdir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("'%s' is not a FreeSurfer subject folder", subjdir)
		}

		convertDir := filepath.Join(convertOpts.outdir, convertOpts.subjectID, "convert")
		if convertOpts.erase {
			if err := os.RemoveAll(convertDir); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(convertDir, 0o755); err != nil {
			return err
		}

		return runTracked(cobraCmd.Context(), "convert", convertOpts.subjectID, convertOpts.fsdir, filepath.Join(convertOpts.outdir, convertOpts.subjectID),
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("fsdir", convertOpts.fsdir)
				rec.SetInput("subjectid", convertOpts.subjectID)
				rec.SetInput("outdir", convertOpts.outdir)

				cfg := conversions.Config{FSConfig: fsconfig, SubjectsDir: convertOpts.fsdir}

				// NIfTI conversions resliced to the native space.
				for _, modality := range convertModalities {
					files, err := conversions.MRIConvert(ctx, cfg, conversions.ConvertOptions{
						FSDir:         convertOpts.fsdir,
						Pattern:       filepath.Join(convertOpts.subjectID, "mri", modality+".mgz"),
						OutDir:        convertOpts.outdir,
						DestDirName:   "convert",
						Reslice:       true,
						Interpolation: "nearest",
					})
					if err != nil {
						return fmt.Errorf("converting %s: %w", modality, err)
					}
					rec.SetOutput(modality, files)
				}

				// Conformed to native registration matrix.
				trfFiles, err := conversions.ConformedToNative(ctx, cfg,
					convertOpts.fsdir, filepath.Join(convertOpts.subjectID, "mri"), convertOpts.outdir)
				if err != nil {
					return fmt.Errorf("computing registration matrix: %w", err)
				}
				rec.SetOutput("trffiles", trfFiles)

				// Surface resampling with the matching annotations.
				annotations := map[string]bool{}
				for _, modality := range []string{"pial", "white"} {
					for _, hemi := range []string{"lh", "rh"} {
						name := hemi + "." + modality
						resampled, annots, err := conversions.ResampleCorticalSurface(ctx, cfg, conversions.ResampleOptions{
							FSDir:       convertOpts.fsdir,
							Pattern:     filepath.Join(convertOpts.subjectID, "surf", name),
							OutDir:      convertOpts.outdir,
							SurfaceName: modality,
						})
						if err != nil {
							return fmt.Errorf("resampling %s: %w", name, err)
						}
						rec.SetOutput(name, resampled)
						for _, annot := range annots {
							annotations[annot] = true
						}
					}
				}
				var annotFiles []string
				for annot := range annotations {
					annotFiles = append(annotFiles, annot)
				}
				rec.SetOutput("annotations", annotFiles)
				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertOpts.fsdir, "fsdir", "d", "", "the FreeSurfer processing home directory")
	convertCmd.Flags().StringVarP(&convertOpts.subjectID, "subjectid", "s", "", "the subject identifier")
	convertCmd.Flags().StringVarP(&convertOpts.outdir, "outdir", "o", "", "the conversion home directory")
	convertCmd.Flags().BoolVarP(&convertOpts.erase, "erase", "e", false, "clean the subject conversion folder first")
	convertCmd.MarkFlagRequired("fsdir")
	convertCmd.MarkFlagRequired("subjectid")
	convertCmd.MarkFlagRequired("outdir")
}
