package discovery

import (
	"bufio"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// allowedExtensions are the image types the upload endpoint accepts,
// lowercase.
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// CollectImages walks root recursively and returns the absolute paths of all
// regular files with an allowed image extension, lexicographically sorted so
// discovery order is stable across runs.
func CollectImages(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// SelectReuploads reads a failure list (one filename per line) and resolves
// each name against the images discovered under root. Names that no longer
// exist under root are logged and skipped. The returned paths keep the
// sorted discovery order.
func SelectReuploads(root, failureListPath string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(failureListPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open failure list %s: %w", failureListPath, err)
	}
	defer f.Close()

	wanted := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			wanted[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading failure list: %w", err)
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	all, err := CollectImages(root)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, path := range all {
		if _, ok := wanted[filepath.Base(path)]; ok {
			selected = append(selected, path)
			delete(wanted, filepath.Base(path))
		}
	}
	for name := range wanted {
		logger.Warn("failed file not found under source directory", "file", name)
	}
	logger.Info("selected failed files for reupload", "found", len(selected), "requested", len(selected)+len(wanted))
	return selected, nil
}
