package recordings

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Export streams the session directory as a ZIP archive.
func (a *Archive) Export(w io.Writer, sessionID string) error {
	dir, err := a.SessionDir(sessionID)
	if err != nil {
		return err
	}

	unlock := a.Lock(sessionID)
	defer unlock()

	files, err := readFiles(dir)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		if strings.HasPrefix(f.name, ".") {
			continue
		}
		if err := addZipFile(zw, sessionID, f); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func addZipFile(zw *zip.Writer, sessionID string, f fileEntry) error {
	src, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.name, err)
	}
	defer func() { _ = src.Close() }()

	header := &zip.FileHeader{
		Name:     sessionID + "/" + f.name,
		Method:   zip.Deflate,
		Modified: f.modTime,
	}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s to zip: %w", f.name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s to zip: %w", f.name, err)
	}
	return nil
}

// Prune removes session directories whose newest file is older than
// olderThan. Sessions for which keep returns true are never removed.
func (a *Archive) Prune(olderThan time.Duration, keep func(sessionID string) bool) ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recordings directory: %w", err)
	}

	cutoff := a.now().Add(-olderThan)
	var removed []string
	for _, entry := range entries {
		id := entry.Name()
		if !entry.IsDir() || !ValidSessionID(id) {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}

		removedOne, err := a.pruneSession(id, cutoff)
		if err != nil {
			return removed, err
		}
		if removedOne {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (a *Archive) pruneSession(sessionID string, cutoff time.Time) (bool, error) {
	unlock := a.Lock(sessionID)
	defer unlock()

	dir := filepath.Join(a.root, sessionID)
	info, err := os.Stat(dir)
	if err != nil {
		return false, nil
	}

	newest := info.ModTime()
	files, err := readFiles(dir)
	if err != nil {
		return false, err
	}
	if n := len(files); n > 0 && files[n-1].modTime.After(newest) {
		newest = files[n-1].modTime
	}
	if !newest.Before(cutoff) {
		return false, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	a.dropGuard(sessionID)
	return true, nil
}
