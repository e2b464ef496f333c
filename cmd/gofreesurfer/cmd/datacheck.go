package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/datacheck"
)

var datacheckOpts struct {
	fsdir           string
	regex           string
	subjectID       string
	conversionCount int
	qcCount         int
	anatfile        string
	layoutFile      string
}

var datacheckCmd = &cobra.Command{
	Use:   "datacheck",
	Short: "Audit the processing home directory structure",
	Long: `Compares every subject folder of the processing home directory against the
reference FreeSurfer layout and the recon-all completion status. With a
subject identifier the complete subject structure is exposed.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if datacheckOpts.anatfile != "" {
			if err := datacheck.CheckAnatomical(datacheckOpts.anatfile); err != nil {
				return err
			}
			fmt.Printf("%s: valid anatomical image\n", datacheckOpts.anatfile)
		}

		var layout map[string]int
		if datacheckOpts.layoutFile != "" {
			var err error
			layout, err = datacheck.LoadLayout(datacheckOpts.layoutFile)
			if err != nil {
				return err
			}
		}

		report, err := datacheck.Check(datacheck.Options{
			FSDir:           datacheckOpts.fsdir,
			SubjectRegex:    datacheckOpts.regex,
			SubjectID:       datacheckOpts.subjectID,
			ConversionCount: datacheckOpts.conversionCount,
			QCCount:         datacheckOpts.qcCount,
			Layout:          layout,
		})
		if err != nil {
			return err
		}

		if IsJSONOutput() {
			data, err := json.MarshalIndent(report, "", "    ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			report.WriteSummary(os.Stdout)
			if datacheckOpts.subjectID != "" {
				if err := report.WriteSubjectTree(os.Stdout, datacheckOpts.subjectID); err != nil {
					return err
				}
			}
		}

		summary := report.Summarize()
		if summary.Incomplete > 0 {
			return fmt.Errorf("%d of %d subjects incomplete", summary.Incomplete, summary.Total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datacheckCmd)

	datacheckCmd.Flags().StringVarP(&datacheckOpts.fsdir, "fsdir", "d", "", "the FreeSurfer processing home directory")
	datacheckCmd.Flags().StringVarP(&datacheckOpts.regex, "regex", "r", "", "the expression retrieving the subject folders")
	datacheckCmd.Flags().StringVarP(&datacheckOpts.subjectID, "subjectid", "s", "", "expose the complete structure of this subject")
	datacheckCmd.Flags().IntVar(&datacheckOpts.conversionCount, "conversions", 0, "the number of files expected in the convert folder")
	datacheckCmd.Flags().IntVarP(&datacheckOpts.qcCount, "qc", "q", 0, "the number of files expected in the qc folder")
	datacheckCmd.Flags().StringVarP(&datacheckOpts.anatfile, "anatfile", "a", "", "also validate this anatomical image (NIfTI or DICOM)")
	datacheckCmd.Flags().StringVar(&datacheckOpts.layoutFile, "layout", "", "YAML file overriding the reference layout counts")
	datacheckCmd.MarkFlagRequired("fsdir")
	datacheckCmd.MarkFlagRequired("regex")
}
