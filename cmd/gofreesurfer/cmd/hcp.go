package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/hcp"
	"github.com/neurospin/gofreesurfer/pkg/provenance"
)

var hcpOpts struct {
	path      string
	subject   string
	t1        []string
	t2        []string
	fmapMag   string
	fmapPhase string
	fmapGE    string
	hcpdir    string
	workbench string

	brainSize       int
	echoDiff        float64
	sePhaseNeg      string
	sePhasePos      string
	echoSpacing     string
	seUnwarpDir     string
	t1Spacing       float64
	t2Spacing       float64
	unwarpDir       string
	gdCoeffs        string
	avgrdcMethod    string
	topupConfig     string
}

var hcpCmd = &cobra.Command{
	Use:   "hcp",
	Short: "Run the HCP structural preprocessing of one subject",
	Long: `Chains the three HCP structural pipelines on the subject acquisitions:
PreFreeSurfer distortion correction and alignment, the FreeSurfer
reconstruction and the PostFreeSurfer surface and grayordinate generation.
Outputs land under <path>/<subject>.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		subjectDir := filepath.Join(hcpOpts.path, hcpOpts.subject)
		return runTracked(cobraCmd.Context(), "hcp", hcpOpts.subject, hcpOpts.path, subjectDir,
			func(ctx context.Context, rec *provenance.Record) error {
				rec.SetInput("path", hcpOpts.path)
				rec.SetInput("subject", hcpOpts.subject)
				rec.SetInput("t1", hcpOpts.t1)
				rec.SetInput("t2", hcpOpts.t2)
				rec.SetInput("hcpdir", hcpOpts.hcpdir)

				pre, err := hcp.PreFreeSurfer(ctx, hcp.PreFreeSurferOptions{
					Path:                hcpOpts.path,
					Subject:             hcpOpts.subject,
					T1:                  hcpOpts.t1,
					T2:                  hcpOpts.t2,
					FmapMag:             hcpOpts.fmapMag,
					FmapPhase:           hcpOpts.fmapPhase,
					FmapGeneralElectric: hcpOpts.fmapGE,
					HCPDir:              hcpOpts.hcpdir,
					Workbench:           hcpOpts.workbench,
					BrainSize:           hcpOpts.brainSize,
					EchoDiff:            hcpOpts.echoDiff,
					SEPhaseNeg:          hcpOpts.sePhaseNeg,
					SEPhasePos:          hcpOpts.sePhasePos,
					EchoSpacing:         hcpOpts.echoSpacing,
					SEUnwarpDir:         hcpOpts.seUnwarpDir,
					T1SampleSpacing:     hcpOpts.t1Spacing,
					T2SampleSpacing:     hcpOpts.t2Spacing,
					UnwarpDir:           hcpOpts.unwarpDir,
					GDCoeffs:            hcpOpts.gdCoeffs,
					AvgrdcMethod:        hcpOpts.avgrdcMethod,
					TopupConfig:         hcpOpts.topupConfig,
					FSConfig:            fsconfig,
					FSLConfig:           fslconfig,
				})
				if err != nil {
					return fmt.Errorf("PreFreeSurfer stage: %w", err)
				}
				rec.SetOutput("t1w_folder", pre.T1wFolder)

				if err := hcp.FreeSurfer(ctx, hcp.FreeSurferOptions{
					Subject:   hcpOpts.subject,
					T1wFolder: pre.T1wFolder,
					T1:        pre.T1,
					T1Brain:   pre.T1Brain,
					T2:        pre.T2,
					HCPDir:    hcpOpts.hcpdir,
					Workbench: hcpOpts.workbench,
					FSConfig:  fsconfig,
					FSLConfig: fslconfig,
				}); err != nil {
					return fmt.Errorf("FreeSurfer stage: %w", err)
				}

				if err := hcp.PostFreeSurfer(ctx, hcp.PostFreeSurferOptions{
					Path:      hcpOpts.path,
					Subject:   hcpOpts.subject,
					HCPDir:    hcpOpts.hcpdir,
					Workbench: hcpOpts.workbench,
					FSConfig:  fsconfig,
					FSLConfig: fslconfig,
				}); err != nil {
					return fmt.Errorf("PostFreeSurfer stage: %w", err)
				}

				rec.SetOutput("subject_dir", subjectDir)
				return nil
			})
	},
}

func init() {
	rootCmd.AddCommand(hcpCmd)

	hcpCmd.Flags().StringVar(&hcpOpts.path, "path", "", "the study data folder")
	hcpCmd.Flags().StringVarP(&hcpOpts.subject, "subject", "s", "", "the subject identifier")
	hcpCmd.Flags().StringSliceVar(&hcpOpts.t1, "t1", nil, "full resolution T1w acquisitions")
	hcpCmd.Flags().StringSliceVar(&hcpOpts.t2, "t2", nil, "full resolution T2w acquisitions")
	hcpCmd.Flags().StringVar(&hcpOpts.fmapMag, "fmapmag", "", "Siemens fieldmap magnitude file")
	hcpCmd.Flags().StringVar(&hcpOpts.fmapPhase, "fmapphase", "", "Siemens fieldmap phase file")
	hcpCmd.Flags().StringVar(&hcpOpts.fmapGE, "fmapgeneralelectric", "", "General Electric fieldmap file")
	hcpCmd.Flags().StringVar(&hcpOpts.hcpdir, "hcpdir", "", "the HCP pipelines installation root")
	hcpCmd.Flags().StringVar(&hcpOpts.workbench, "workbench", "", "the directory containing wb_command")
	hcpCmd.Flags().IntVar(&hcpOpts.brainSize, "brainsize", 0, "the average brain size in mm")
	hcpCmd.Flags().Float64Var(&hcpOpts.echoDiff, "echodiff", 0, "the fieldmap echo time difference in ms")
	hcpCmd.Flags().StringVar(&hcpOpts.sePhaseNeg, "sephaseneg", "", "negative phase encoding spin echo fieldmap")
	hcpCmd.Flags().StringVar(&hcpOpts.sePhasePos, "sephasepos", "", "positive phase encoding spin echo fieldmap")
	hcpCmd.Flags().StringVar(&hcpOpts.echoSpacing, "echospacing", "", "the spin echo fieldmap echo spacing")
	hcpCmd.Flags().StringVar(&hcpOpts.seUnwarpDir, "seunwarpdir", "", "the spin echo fieldmap unwarp direction")
	hcpCmd.Flags().Float64Var(&hcpOpts.t1Spacing, "t1samplespacing", 0, "the T1 readout sample spacing in s")
	hcpCmd.Flags().Float64Var(&hcpOpts.t2Spacing, "t2samplespacing", 0, "the T2 readout sample spacing in s")
	hcpCmd.Flags().StringVar(&hcpOpts.unwarpDir, "unwarpdir", "", "the readout distortion direction")
	hcpCmd.Flags().StringVar(&hcpOpts.gdCoeffs, "gdcoeffs", "", "the scanner gradient nonlinearity coefficients file")
	hcpCmd.Flags().StringVar(&hcpOpts.avgrdcMethod, "avgrdcmethod", "", "the readout distortion correction method")
	hcpCmd.Flags().StringVar(&hcpOpts.topupConfig, "topupconfig", "", "the topup configuration file")
	hcpCmd.MarkFlagRequired("path")
	hcpCmd.MarkFlagRequired("subject")
	hcpCmd.MarkFlagRequired("t1")
	hcpCmd.MarkFlagRequired("t2")
	hcpCmd.MarkFlagRequired("hcpdir")
	hcpCmd.MarkFlagRequired("workbench")
}
