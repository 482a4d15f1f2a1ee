package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/raceshot/uploader/pkg/models"
)

const (
	resultsCSVName = "upload_results.csv"
	successName    = "success_list.txt"
	failureName    = "failure_list.txt"
	historyCSVName = "upload_history.csv"
	logName        = "upload.log"
)

var resultsHeader = []string{"file_path", "file_name", "success", "message", "photo_id", "error", "status_code"}
var historyHeader = []string{"file_path", "event_id", "location", "photo_id"}

// Writer appends run results to the durable output files: the results CSV,
// the success/failure filename lists, and the history CSV used for
// cross-run dedup. Appends are incremental so an interrupted run keeps the
// accounting for everything that completed.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter ensures the output directory and files exist, writing CSV
// headers on first creation.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	w := &Writer{dir: dir}
	if err := w.initCSV(w.ResultsCSVPath(), resultsHeader); err != nil {
		return nil, err
	}
	if err := w.initCSV(w.HistoryCSVPath(), historyHeader); err != nil {
		return nil, err
	}
	for _, p := range []string{w.SuccessListPath(), w.FailureListPath()} {
		if err := touch(p); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) ResultsCSVPath() string  { return filepath.Join(w.dir, resultsCSVName) }
func (w *Writer) SuccessListPath() string { return filepath.Join(w.dir, successName) }
func (w *Writer) FailureListPath() string { return filepath.Join(w.dir, failureName) }
func (w *Writer) HistoryCSVPath() string  { return filepath.Join(w.dir, historyCSVName) }
func (w *Writer) LogPath() string         { return filepath.Join(w.dir, logName) }

func (w *Writer) initCSV(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return f.Close()
}

// Append records one result across the output files. Successes also go into
// the history CSV keyed by (file path, event id) for later dedup.
func (w *Writer) Append(result models.UploadResult, eventID, location string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := ""
	if result.StatusCode != 0 {
		status = strconv.Itoa(result.StatusCode)
	}
	if err := w.appendCSV(w.ResultsCSVPath(), []string{
		result.FilePath,
		result.FileName,
		strconv.FormatBool(result.Success),
		result.Message,
		result.PhotoID,
		result.Error,
		status,
	}); err != nil {
		return err
	}

	listPath := w.FailureListPath()
	if result.Success {
		listPath = w.SuccessListPath()
	}
	if err := appendLine(listPath, result.FileName); err != nil {
		return err
	}

	if result.Success {
		if err := w.appendCSV(w.HistoryCSVPath(), []string{
			result.FilePath, eventID, location, result.PhotoID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendCSV(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// ResetFailureList truncates the failure list so a reupload run records only
// the failures it produces itself.
func (w *Writer) ResetFailureList() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return os.WriteFile(w.FailureListPath(), nil, 0o644)
}
