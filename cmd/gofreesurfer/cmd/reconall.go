package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/provenance"
	"github.com/neurospin/gofreesurfer/pkg/recon"
)

var reconAllOpts struct {
	fsdir     string
	subjectID string
	anatfile  string
	erase     bool
}

var reconAllCmd = &cobra.Command{
	Use:   "recon-all",
	Short: "Run the full cortical reconstruction of one subject",
	Long: `Performs all the FreeSurfer cortical reconstruction steps on the subject
anatomical image: motion correction, skull stripping, segmentation, surface
extraction and parcellation. Outputs land under <fsdir>/<subjectid>.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		subjdir := filepath.Join(reconAllOpts.fsdir, reconAllOpts.subjectID)
		return runTracked(cobraCmd.Context(), "recon-all", reconAllOpts.subjectID, reconAllOpts.fsdir, subjdir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("fsdir", reconAllOpts.fsdir)
				rec.SetInput("subjectid", reconAllOpts.subjectID)
				rec.SetInput("anatfile", reconAllOpts.anatfile)

				out, err := recon.All(ctx, recon.Options{
					FSDir:     reconAllOpts.fsdir,
					AnatFile:  reconAllOpts.anatfile,
					SubjectID: reconAllOpts.subjectID,
					FSConfig:  fsconfig,
					Erase:     reconAllOpts.erase,
				})
				if err != nil {
					return err
				}
				rec.SetOutput("subjdir", out)
				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(reconAllCmd)

	reconAllCmd.Flags().StringVarP(&reconAllOpts.fsdir, "fsdir", "d", "", "the FreeSurfer processing home directory")
	reconAllCmd.Flags().StringVarP(&reconAllOpts.subjectID, "subjectid", "s", "", "the subject identifier")
	reconAllCmd.Flags().StringVarP(&reconAllOpts.anatfile, "anatfile", "a", "", "the subject anatomical image to be processed")
	reconAllCmd.Flags().BoolVarP(&reconAllOpts.erase, "erase", "e", false, "clean the subject folder before processing")
	reconAllCmd.MarkFlagRequired("fsdir")
	reconAllCmd.MarkFlagRequired("subjectid")
	reconAllCmd.MarkFlagRequired("anatfile")
}
