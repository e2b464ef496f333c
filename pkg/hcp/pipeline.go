package hcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Siemens Connectom scanner acquisition defaults.
const (
	DefaultBrainSize       = 150
	DefaultEchoDiff        = 2.46
	DefaultT1SampleSpacing = 0.0000074
	DefaultT2SampleSpacing = 0.0000021
	DefaultUnwarpDir       = "z"
	DefaultAvgrdcMethod    = "SiemensFieldMap"
)

// PreFreeSurferOptions parametrizes the PreFreeSurfer pipeline: image
// averaging, distortion correction, brain extraction, bias field correction
// and MNI registration.
type PreFreeSurferOptions struct {
	// Path is the study data folder. Outputs land under Path/Subject.
	Path    string
	Subject string
	// T1 and T2 list the full resolution structural acquisitions. At
	// least one of each is required.
	T1 []string
	T2 []string
	// FmapMag and FmapPhase are the Siemens gradient echo fieldmap
	// magnitude and phase files.
	FmapMag   string
	FmapPhase string
	// HCPDir is the HCP pipelines installation root.
	HCPDir string

	BrainSize            int
	FmapGeneralElectric  string
	EchoDiff             float64
	SEPhaseNeg           string
	SEPhasePos           string
	EchoSpacing          string
	SEUnwarpDir          string
	T1SampleSpacing      float64
	T2SampleSpacing      float64
	UnwarpDir            string
	GDCoeffs             string
	AvgrdcMethod         string
	TopupConfig          string

	// Workbench is the directory containing wb_command.
	Workbench string
	FSConfig  string
	FSLConfig string
}

func (o *PreFreeSurferOptions) setDefaults() {
	if o.BrainSize == 0 {
		o.BrainSize = DefaultBrainSize
	}
	if o.FmapGeneralElectric == "" {
		o.FmapGeneralElectric = "NONE"
	}
	if o.EchoDiff == 0 {
		o.EchoDiff = DefaultEchoDiff
	}
	if o.SEPhaseNeg == "" {
		o.SEPhaseNeg = "NONE"
	}
	if o.SEPhasePos == "" {
		o.SEPhasePos = "NONE"
	}
	if o.EchoSpacing == "" {
		o.EchoSpacing = "NONE"
	}
	if o.SEUnwarpDir == "" {
		o.SEUnwarpDir = "NONE"
	}
	if o.T1SampleSpacing == 0 {
		o.T1SampleSpacing = DefaultT1SampleSpacing
	}
	if o.T2SampleSpacing == 0 {
		o.T2SampleSpacing = DefaultT2SampleSpacing
	}
	if o.UnwarpDir == "" {
		o.UnwarpDir = DefaultUnwarpDir
	}
	if o.GDCoeffs == "" {
		o.GDCoeffs = "NONE"
	}
	if o.AvgrdcMethod == "" {
		o.AvgrdcMethod = DefaultAvgrdcMethod
	}
	if o.TopupConfig == "" {
		o.TopupConfig = "NONE"
	}
}

// PreFreeSurferResult locates the preprocessed structural images produced
// under the subject's T1w folder.
type PreFreeSurferResult struct {
	T1wFolder string
	T1        string
	T1Brain   string
	T2        string
}

// PreFreeSurfer runs the HCP PreFreeSurfer pipeline and returns the
// locations of the distortion corrected, bias corrected structural images.
func PreFreeSurfer(ctx context.Context, opts PreFreeSurferOptions) (*PreFreeSurferResult, error) {
	opts.setDefaults()

	if err := checkDirs(opts.Path, opts.HCPDir, opts.Workbench); err != nil {
		return nil, err
	}
	if len(opts.T1) == 0 || len(opts.T2) == 0 {
		return nil, fmt.Errorf("at least one T1w and one T2w image are required")
	}
	files := append(append([]string{}, opts.T1...), opts.T2...)
	if opts.FmapMag != "NONE" && opts.FmapMag != "" {
		files = append(files, opts.FmapMag)
	}
	if opts.FmapPhase != "NONE" && opts.FmapPhase != "" {
		files = append(files, opts.FmapPhase)
	}
	if err := checkFiles(files...); err != nil {
		return nil, err
	}

	templates := filepath.Join(opts.HCPDir, "global", "templates")
	cmd := []string{
		filepath.Join(opts.HCPDir, "PreFreeSurfer", "PreFreeSurferPipeline.sh"),
		"--path", opts.Path,
		"--subject", opts.Subject,
		"--t1", strings.Join(opts.T1, ", "),
		"--t2", strings.Join(opts.T2, ", "),
		"--t1template", filepath.Join(templates, "MNI152_T1_0.7mm.nii.gz"),
		"--t1templatebrain", filepath.Join(templates, "MNI152_T1_0.7mm_brain.nii.gz"),
		"--t1template2mm", filepath.Join(templates, "MNI152_T1_2mm.nii.gz"),
		"--t2template", filepath.Join(templates, "MNI152_T2_0.7mm.nii.gz"),
		"--t2templatebrain", filepath.Join(templates, "MNI152_T2_0.7mm_brain.nii.gz"),
		"--t2template2mm", filepath.Join(templates, "MNI152_T2_2mm.nii.gz"),
		"--templatemask", filepath.Join(templates, "MNI152_T1_0.7mm_brain_mask.nii.gz"),
		"--template2mmmask", filepath.Join(templates, "MNI152_T1_2mm_brain_mask_dil.nii.gz"),
		"--brainsize", strconv.Itoa(opts.BrainSize),
		"--fnirtconfig", filepath.Join(opts.HCPDir, "global", "config", "T1_2_MNI152_2mm.cnf"),
		"--fmapmag", opts.FmapMag,
		"--fmapphase", opts.FmapPhase,
		"--fmapgeneralelectric", opts.FmapGeneralElectric,
		"--echodiff", formatFloat(opts.EchoDiff),
		"--SEPhaseNeg", opts.SEPhaseNeg,
		"--SEPhasePos", opts.SEPhasePos,
		"--echospacing", opts.EchoSpacing,
		"--seunwarpdir", opts.SEUnwarpDir,
		"--t1samplespacing", formatFloat(opts.T1SampleSpacing),
		"--t2samplespacing", formatFloat(opts.T2SampleSpacing),
		"--unwarpdir", opts.UnwarpDir,
		"--gdcoeffs", opts.GDCoeffs,
		"--avgrdcmethod", opts.AvgrdcMethod,
		"--topupconfig", opts.TopupConfig,
	}

	wrapper, err := NewWrapper(map[string]string{
		"HCPPIPEDIR":           opts.HCPDir,
		"HCPPIPEDIR_PreFS":     filepath.Join(opts.HCPDir, "PreFreeSurfer", "scripts"),
		"HCPPIPEDIR_Global":    filepath.Join(opts.HCPDir, "global", "scripts"),
		"HCPPIPEDIR_Templates": templates,
		"HCPPIPEDIR_Config":    filepath.Join(opts.HCPDir, "global", "config"),
		"CARET7DIR":            opts.Workbench,
		"PATH":                 os.Getenv("PATH"),
	}, opts.FSConfig, opts.FSLConfig)
	if err != nil {
		return nil, err
	}
	if err := wrapper.Run(ctx, cmd); err != nil {
		return nil, err
	}

	t1wFolder := filepath.Join(opts.Path, opts.Subject, "T1w")
	return &PreFreeSurferResult{
		T1wFolder: t1wFolder,
		T1:        filepath.Join(t1wFolder, "T1w_acpc_dc_restore.nii.gz"),
		T1Brain:   filepath.Join(t1wFolder, "T1w_acpc_dc_restore_brain.nii.gz"),
		T2:        filepath.Join(t1wFolder, "T2w_acpc_dc_restore.nii.gz"),
	}, nil
}

// FreeSurferOptions parametrizes the HCP flavored FreeSurfer segmentation,
// fed with the PreFreeSurfer outputs.
type FreeSurferOptions struct {
	Subject   string
	T1wFolder string
	T1        string
	T1Brain   string
	T2        string
	HCPDir    string
	Workbench string
	FSConfig  string
	FSLConfig string
}

// FreeSurfer runs the HCP FreeSurfer pipeline on the preprocessed images.
func FreeSurfer(ctx context.Context, opts FreeSurferOptions) error {
	if err := checkDirs(opts.T1wFolder, opts.HCPDir, opts.Workbench); err != nil {
		return err
	}
	if err := checkFiles(opts.T1, opts.T1Brain, opts.T2); err != nil {
		return err
	}

	cmd := []string{
		filepath.Join(opts.HCPDir, "FreeSurfer", "FreeSurferPipeline.sh"),
		"--subject", opts.Subject,
		"--subjectDIR", opts.T1wFolder,
		"--t1", opts.T1,
		"--t1brain", opts.T1Brain,
		"--t2", opts.T2,
	}

	wrapper, err := NewWrapper(map[string]string{
		"HCPPIPEDIR":    opts.HCPDir,
		"HCPPIPEDIR_FS": filepath.Join(opts.HCPDir, "FreeSurfer", "scripts"),
		"CARET7DIR":     opts.Workbench,
	}, opts.FSConfig, opts.FSLConfig)
	if err != nil {
		return err
	}
	return wrapper.Run(ctx, cmd)
}

// PostFreeSurferOptions parametrizes the surface and grayordinate
// conversion stage.
type PostFreeSurferOptions struct {
	Path      string
	Subject   string
	HCPDir    string
	Workbench string
	FSConfig  string
	FSLConfig string
}

// PostFreeSurfer runs the HCP PostFreeSurfer pipeline: NIFTI/GIFTI
// conversion, full resolution ribbon generation and myelin mapping.
func PostFreeSurfer(ctx context.Context, opts PostFreeSurferOptions) error {
	if err := checkDirs(opts.Path, opts.HCPDir, opts.Workbench); err != nil {
		return err
	}

	templates := filepath.Join(opts.HCPDir, "global", "templates")
	config := filepath.Join(opts.HCPDir, "global", "config")
	cmd := []string{
		filepath.Join(opts.HCPDir, "PostFreeSurfer", "PostFreeSurferPipeline.sh"),
		"--path", opts.Path,
		"--subject", opts.Subject,
		"--surfatlasdir", filepath.Join(templates, "standard_mesh_atlases"),
		"--grayordinatesdir", filepath.Join(templates, "91282_Greyordinates"),
		"--grayordinatesres", "2",
		"--hiresmesh", "164",
		"--lowresmesh", "32",
		"--subcortgraylabels", filepath.Join(config, "FreeSurferSubcorticalLabelTableLut.txt"),
		"--freesurferlabels", filepath.Join(config, "FreeSurferAllLut.txt"),
		"--refmyelinmaps", filepath.Join(templates, "standard_mesh_atlases",
			"Conte69.MyelinMap_BC.164k_fs_LR.dscalar.nii"),
		"--regname", "FS",
	}

	wrapper, err := NewWrapper(map[string]string{
		"HCPPIPEDIR":        opts.HCPDir,
		"HCPPIPEDIR_PostFS": filepath.Join(opts.HCPDir, "PostFreeSurfer", "scripts"),
		"CARET7DIR":         opts.Workbench,
	}, opts.FSConfig, opts.FSLConfig)
	if err != nil {
		return err
	}
	return wrapper.Run(ctx, cmd)
}

func checkDirs(dirs ...string) error {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("'%s' is not a valid directory", dir)
		}
	}
	return nil
}

func checkFiles(files ...string) error {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			return fmt.Errorf("'%s' is not a valid file", file)
		}
	}
	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
