package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neurospin/gofreesurfer/pkg/logging"
	"github.com/neurospin/gofreesurfer/pkg/provenance"
	"github.com/neurospin/gofreesurfer/pkg/store"
)

var (
	cfgFile      string
	fsconfig     string
	fslconfig    string
	registryPath string
	verbose      int
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gofreesurfer",
	Short: "CLI for FreeSurfer, HCP and tracula processing",
	Long: `gofreesurfer drives FreeSurfer, HCP and tracula pipelines over cohorts of
subjects: cortical reconstruction, volume and surface conversions, stats table
aggregation and diffusion pathway reconstruction. Every run leaves a JSON
provenance trail and can be recorded in a run registry.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gofreesurfer/config)")
	rootCmd.PersistentFlags().StringVarP(&fsconfig, "fsconfig", "c", "", "FreeSurfer setup script (SetUpFreeSurfer.sh)")
	rootCmd.PersistentFlags().StringVar(&fslconfig, "fslconfig", "", "FSL setup script (fsl.sh)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "SQLite run registry path (default from config, optional)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase the verbosity level")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".gofreesurfer"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.BindEnv("fsconfig", "FREESURFER_CONFIG")
	viper.BindEnv("fslconfig", "FSL_CONFIG")
	viper.BindEnv("registry", "GOFREESURFER_REGISTRY")

	// Config file is optional; flags take precedence over its values.
	viper.ReadInConfig()

	if fsconfig == "" {
		fsconfig = viper.GetString("fsconfig")
	}
	if fslconfig == "" {
		fslconfig = viper.GetString("fslconfig")
	}
	if registryPath == "" {
		registryPath = viper.GetString("registry")
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func newLogger(tool string) *logging.Logger {
	level := logging.WARN
	switch {
	case verbose >= 2:
		level = logging.DEBUG
	case verbose == 1:
		level = logging.INFO
	}
	return logging.NewLogger(tool, level, false)
}

// openStore opens the configured run registry, or an in-memory one when no
// registry path is set.
func openStore() (store.Store, error) {
	if registryPath == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(registryPath)
}

// runTracked executes one pipeline operation with provenance and registry
// bookkeeping: the run is recorded before starting, the logs/ JSON documents
// are written under outdir whether the operation succeeded or not, and the
// registry row is closed with the final status.
func runTracked(ctx context.Context, tool, subjectID, fsdir, outdir string, fn func(ctx context.Context, rec *provenance.Record) error) error {
	logger := newLogger(tool)
	rec := provenance.New(tool, "")
	rec.SetInput("fsconfig", fsconfig)

	s, err := openStore()
	if err != nil {
		return fmt.Errorf("opening run registry: %w", err)
	}
	defer s.Close()

	run := &store.Run{
		ID:        rec.RunID,
		Tool:      tool,
		SubjectID: subjectID,
		FSDir:     fsdir,
		OutDir:    outdir,
		StartedAt: rec.StartTime,
	}
	if err := s.CreateRun(run); err != nil {
		logger.Warn("could not record run", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("starting run", map[string]interface{}{"run_id": rec.RunID, "subject": subjectID})
	runErr := fn(ctx, rec)

	if outdir != "" {
		if _, err := rec.Write(outdir, runErr); err != nil {
			logger.Error("could not write provenance", map[string]interface{}{"error": err.Error()})
		}
	}

	status := store.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = store.RunStatusFailed
		errMsg = runErr.Error()
		logger.Error("run failed", map[string]interface{}{"run_id": rec.RunID, "error": errMsg})
	} else {
		logger.Info("run completed", map[string]interface{}{"run_id": rec.RunID})
	}
	if err := s.CompleteRun(rec.RunID, status, errMsg); err != nil && err != store.ErrRunNotFound {
		logger.Warn("could not close run record", map[string]interface{}{"error": err.Error()})
	}

	return runErr
}
