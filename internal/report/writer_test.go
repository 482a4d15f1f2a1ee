package report

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceshot/uploader/pkg/models"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	return w
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestNewWriter_CreatesFilesWithHeaders(t *testing.T) {
	w := newTestWriter(t)

	rows := readCSV(t, w.ResultsCSVPath())
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"file_path", "file_name", "success", "message", "photo_id", "error", "status_code"}, rows[0])

	rows = readCSV(t, w.HistoryCSVPath())
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"file_path", "event_id", "location", "photo_id"}, rows[0])

	assert.Empty(t, readLines(t, w.SuccessListPath()))
	assert.Empty(t, readLines(t, w.FailureListPath()))
}

func TestAppend_SuccessGoesToAllSuccessFiles(t *testing.T) {
	w := newTestWriter(t)

	require.NoError(t, w.Append(models.UploadResult{
		FilePath:   "/photos/a.jpg",
		FileName:   "a.jpg",
		Success:    true,
		Message:    "uploaded",
		PhotoID:    "p1",
		Class:      models.ClassSuccess,
		StatusCode: 200,
	}, "evt-1", "start"))

	rows := readCSV(t, w.ResultsCSVPath())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"/photos/a.jpg", "a.jpg", "true", "uploaded", "p1", "", "200"}, rows[1])

	assert.Equal(t, []string{"a.jpg"}, readLines(t, w.SuccessListPath()))
	assert.Empty(t, readLines(t, w.FailureListPath()))

	history := readCSV(t, w.HistoryCSVPath())
	require.Len(t, history, 2)
	assert.Equal(t, []string{"/photos/a.jpg", "evt-1", "start", "p1"}, history[1])
}

func TestAppend_FailureGoesToFailureListOnly(t *testing.T) {
	w := newTestWriter(t)

	require.NoError(t, w.Append(models.UploadResult{
		FilePath: "/photos/b.jpg",
		FileName: "b.jpg",
		Message:  "upload failed",
		Error:    "HTTP 500",
		Class:    models.ClassServerError,
	}, "evt-1", "start"))

	rows := readCSV(t, w.ResultsCSVPath())
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1][6], "no status code column value when none was received")

	assert.Empty(t, readLines(t, w.SuccessListPath()))
	assert.Equal(t, []string{"b.jpg"}, readLines(t, w.FailureListPath()))
	assert.Len(t, readCSV(t, w.HistoryCSVPath()), 1, "failures never enter history")
}

func TestResetFailureList(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Append(models.UploadResult{FileName: "b.jpg"}, "evt-1", "x"))
	require.Len(t, readLines(t, w.FailureListPath()), 1)

	require.NoError(t, w.ResetFailureList())
	assert.Empty(t, readLines(t, w.FailureListPath()))
}

func TestHistoryKeys_FiltersByEvent(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Append(models.UploadResult{FilePath: "/p/a.jpg", FileName: "a.jpg", Success: true, PhotoID: "p1"}, "evt-1", "x"))
	require.NoError(t, w.Append(models.UploadResult{FilePath: "/p/b.jpg", FileName: "b.jpg", Success: true, PhotoID: "p2"}, "evt-2", "x"))

	keys, err := w.HistoryKeys("evt-1")
	require.NoError(t, err)
	assert.Contains(t, keys, "/p/a.jpg")
	assert.NotContains(t, keys, "/p/b.jpg")
}

func TestHistoryKeys_SurvivesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	w1, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w1.Append(models.UploadResult{FilePath: "/p/a.jpg", FileName: "a.jpg", Success: true}, "evt-1", "x"))

	// A second writer over the same directory must keep the accumulated
	// history rather than rewriting headers.
	w2, err := NewWriter(dir)
	require.NoError(t, err)
	keys, err := w2.HistoryKeys("evt-1")
	require.NoError(t, err)
	assert.Contains(t, keys, "/p/a.jpg")
}

func TestFilterUploaded(t *testing.T) {
	keys := map[string]struct{}{"/p/a.jpg": {}, "/p/c.jpg": {}}
	kept, skipped := FilterUploaded([]string{"/p/a.jpg", "/p/b.jpg", "/p/c.jpg"}, keys)
	assert.Equal(t, []string{"/p/b.jpg"}, kept)
	assert.Equal(t, 2, skipped)

	kept, skipped = FilterUploaded([]string{"/p/a.jpg"}, nil)
	assert.Equal(t, []string{"/p/a.jpg"}, kept)
	assert.Zero(t, skipped)
}
