package datacheck

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubject builds a subject tree honoring the reference layout, with a
// configurable recon-all exit message.
func fakeSubject(t *testing.T, fsdir, sid, statusLine string) {
	t.Helper()

	for rpath, count := range expectedLayout() {
		dir := filepath.Join(fsdir, sid, rpath)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := 0; i < count; i++ {
			require.NoError(t, os.WriteFile(
				filepath.Join(dir, fmt.Sprintf("file%03d", i)), []byte("x"), 0o644))
		}
	}
	// The scripts folder already received its 11 files; the status log
	// replaces one of them to keep the count intact.
	log := filepath.Join(fsdir, sid, "scripts", "recon-all-status.log")
	require.NoError(t, os.Remove(filepath.Join(fsdir, sid, "scripts", "file000")))
	require.NoError(t, os.WriteFile(log, []byte("step one\n"+statusLine+"\n\n"), 0o644))
}

func TestCheckCompleteSubject(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "recon-all -s ab123456 finished without error")

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)
	require.Contains(t, report.Subjects, "ab123456")

	status := report.Subjects["ab123456"]
	assert.True(t, status.Finished)
	assert.True(t, status.CountsOK)
	assert.Empty(t, status.ExtraPaths)
	assert.Equal(t, 69, status.Counts["label"])
}

func TestCheckDetectsFailuresAndExtras(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "cd654321", "recon-all -s cd654321 exited with ERRORS")

	// One surf file missing, one unexpected folder present.
	require.NoError(t, os.Remove(filepath.Join(fsdir, "cd654321", "surf", "file000")))
	require.NoError(t, os.MkdirAll(filepath.Join(fsdir, "cd654321", "leftover"), 0o755))

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)

	status := report.Subjects["cd654321"]
	assert.False(t, status.Finished)
	assert.False(t, status.CountsOK)
	assert.Equal(t, []string{"leftover"}, status.ExtraPaths)
	assert.Equal(t, 69, status.Counts["surf"])
}

func TestCheckSkipsNonSubjectFolders(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "finished without error")
	require.NoError(t, os.MkdirAll(filepath.Join(fsdir, "fsaverage"), 0o755))

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)
	assert.Len(t, report.Subjects, 1)
	assert.NotContains(t, report.Subjects, "fsaverage")
}

func TestCheckConversionCounts(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "finished without error")

	convert := filepath.Join(fsdir, "ab123456", "convert")
	require.NoError(t, os.MkdirAll(convert, 0o755))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(convert, fmt.Sprintf("vol%d.nii.gz", i)), []byte("x"), 0o644))
	}

	report, err := Check(Options{
		FSDir:           fsdir,
		SubjectRegex:    `[a-z]{2}\d{6}`,
		ConversionCount: 3,
	})
	require.NoError(t, err)
	assert.True(t, report.Subjects["ab123456"].CountsOK)

	report, err = Check(Options{
		FSDir:           fsdir,
		SubjectRegex:    `[a-z]{2}\d{6}`,
		ConversionCount: 30,
	})
	require.NoError(t, err)
	assert.False(t, report.Subjects["ab123456"].CountsOK)
}

func TestSummarize(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "finished without error")
	fakeSubject(t, fsdir, "cd654321", "exited with ERRORS")

	// cd654321 fails the file counts as well, it must still count as one
	// incomplete subject.
	require.NoError(t, os.Remove(filepath.Join(fsdir, "cd654321", "surf", "file000")))

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)

	summary := report.Summarize()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Finished)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"cd654321"}, summary.FailedSIDs)
	assert.Equal(t, 1, summary.CountsOK)
	assert.Equal(t, 1, summary.CountsFailed)
	assert.Equal(t, 1, summary.Incomplete)
}

func TestSummarizeAllComplete(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "finished without error")

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)

	summary := report.Summarize()
	assert.Equal(t, 0, summary.Incomplete)
}

func TestWriteSummaryAndSubjectTree(t *testing.T) {
	fsdir := t.TempDir()
	fakeSubject(t, fsdir, "ab123456", "finished without error")

	report, err := Check(Options{
		FSDir:        fsdir,
		SubjectRegex: `[a-z]{2}\d{6}`,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	report.WriteSummary(&buf)
	assert.Contains(t, buf.String(), "1/1")

	buf.Reset()
	require.NoError(t, report.WriteSubjectTree(&buf, "ab123456"))
	assert.Contains(t, buf.String(), "label")
	assert.Contains(t, buf.String(), "69")

	assert.Error(t, report.WriteSubjectTree(&buf, "unknown"))
}
