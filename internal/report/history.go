package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// HistoryKeys returns the set of absolute file paths that were already
// uploaded successfully for the given event, read from the history CSV.
// A missing history file means an empty set.
func (w *Writer) HistoryKeys(eventID string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	f, err := os.Open(w.HistoryCSVPath())
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil { // header
		if err == io.EOF {
			return keys, nil
		}
		return nil, fmt.Errorf("reading history header: %w", err)
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		if len(row) >= 2 && row[1] == eventID {
			keys[row[0]] = struct{}{}
		}
	}
	return keys, nil
}

// FilterUploaded removes paths that already appear in keys, preserving
// order. It returns the remaining paths and the number skipped.
func FilterUploaded(paths []string, keys map[string]struct{}) ([]string, int) {
	if len(keys) == 0 {
		return paths, 0
	}
	kept := paths[:0:0]
	for _, p := range paths {
		if _, ok := keys[p]; !ok {
			kept = append(kept, p)
		}
	}
	return kept, len(paths) - len(kept)
}
