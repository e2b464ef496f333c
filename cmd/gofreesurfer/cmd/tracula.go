package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/provenance"
	"github.com/neurospin/gofreesurfer/pkg/tracula"
)

var traculaOpts struct {
	outdir      string
	subjectID   string
	dwi         string
	bvals       string
	bvecs       string
	bedpostx    string
	subjectsDir string

	eddy        bool
	rotateBvecs bool
	bbregister  bool
	mni         bool
}

var traculaCmd = &cobra.Command{
	Use:   "tracula",
	Short: "Reconstruct the white matter pathways of one subject",
	Long: `Runs the trac-all preprocessing and pathway reconstruction stages on the
subject diffusion series, reusing a prior bedpostX decomposition. Outputs
land under <outdir>/<subjectid>.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		return runTracked(cobraCmd.Context(), "trac-all", traculaOpts.subjectID, traculaOpts.subjectsDir, traculaOpts.outdir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("outdir", traculaOpts.outdir)
				rec.SetInput("subjectid", traculaOpts.subjectID)
				rec.SetInput("dwi", traculaOpts.dwi)
				rec.SetInput("bvals", traculaOpts.bvals)
				rec.SetInput("bvecs", traculaOpts.bvecs)
				rec.SetInput("bedpostx", traculaOpts.bedpostx)

				out, err := tracula.TracAll(ctx, tracula.Options{
					OutDir:        traculaOpts.outdir,
					SubjectID:     traculaOpts.subjectID,
					DWI:           traculaOpts.dwi,
					Bvals:         traculaOpts.bvals,
					Bvecs:         traculaOpts.bvecs,
					BedpostXDir:   traculaOpts.bedpostx,
					SubjectsDir:   traculaOpts.subjectsDir,
					DoEddy:        traculaOpts.eddy,
					DoRotateBvecs: traculaOpts.rotateBvecs,
					DoBBRegister:  traculaOpts.bbregister,
					DoRegisterMNI: traculaOpts.mni,
					FSConfig:      fsconfig,
					FSLConfig:     fslconfig,
				})
				if err != nil {
					return err
				}
				rec.SetOutput("subject_outdir", out)
				return nil
			})
	},
}

var traculaStatOpts struct {
	outdir      string
	subjectsDir string
}

var traculaStatCmd = &cobra.Command{
	Use:   "stat",
	Short: "Aggregate the pathway statistics of the whole cohort",
	Long: `Runs trac-all -stat over every subject carrying reconstructed pathways,
moves the group summary under <outdir>/stats and reports the pathways
flagged as outliers in <outdir>/outliers.json.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		return runTracked(cobraCmd.Context(), "trac-all-stat", "", traculaStatOpts.subjectsDir, traculaStatOpts.outdir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("outdir", traculaStatOpts.outdir)
				rec.SetInput("subjectsdir", traculaStatOpts.subjectsDir)

				statsDir, outlierFile, err := tracula.TracAllStat(ctx, tracula.StatOptions{
					OutDir:      traculaStatOpts.outdir,
					SubjectsDir: traculaStatOpts.subjectsDir,
					FSConfig:    fsconfig,
					FSLConfig:   fslconfig,
				})
				if err != nil {
					return err
				}
				rec.SetOutput("statsdir", statsDir)
				rec.SetOutput("outliers", outlierFile)
				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(traculaCmd)
	traculaCmd.AddCommand(traculaStatCmd)

	traculaCmd.Flags().StringVarP(&traculaOpts.outdir, "outdir", "o", "", "the tracula destination directory")
	traculaCmd.Flags().StringVarP(&traculaOpts.subjectID, "subjectid", "s", "", "the subject identifier")
	traculaCmd.Flags().StringVar(&traculaOpts.dwi, "dwi", "", "the diffusion-weighted NIfTI series")
	traculaCmd.Flags().StringVar(&traculaOpts.bvals, "bvals", "", "the diffusion b-values file")
	traculaCmd.Flags().StringVar(&traculaOpts.bvecs, "bvecs", "", "the diffusion b-vectors file")
	traculaCmd.Flags().StringVar(&traculaOpts.bedpostx, "bedpostx", "", "a prior bedpostX decomposition directory")
	traculaCmd.Flags().StringVar(&traculaOpts.subjectsDir, "subjectsdir", "", "the FreeSurfer subjects directory (default $SUBJECTS_DIR)")
	traculaCmd.Flags().BoolVar(&traculaOpts.eddy, "eddy", false, "correct for eddy currents")
	traculaCmd.Flags().BoolVar(&traculaOpts.rotateBvecs, "rotate-bvecs", false, "rotate the b-vectors after eddy correction")
	traculaCmd.Flags().BoolVar(&traculaOpts.bbregister, "bbregister", false, "register with bbregister")
	traculaCmd.Flags().BoolVar(&traculaOpts.mni, "mni", false, "also register to the MNI template")
	traculaCmd.MarkFlagRequired("outdir")
	traculaCmd.MarkFlagRequired("subjectid")
	traculaCmd.MarkFlagRequired("dwi")
	traculaCmd.MarkFlagRequired("bvals")
	traculaCmd.MarkFlagRequired("bvecs")
	traculaCmd.MarkFlagRequired("bedpostx")

	traculaStatCmd.Flags().StringVarP(&traculaStatOpts.outdir, "outdir", "o", "", "the statistics destination directory")
	traculaStatCmd.Flags().StringVar(&traculaStatOpts.subjectsDir, "subjectsdir", "", "the FreeSurfer subjects directory (default $SUBJECTS_DIR)")
	traculaStatCmd.MarkFlagRequired("outdir")
}
