package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Write replaces the artifact at dir with enc. Files are written and synced
// into a sibling temp directory which is then renamed over dir, so readers
// see either the previous artifact or the new one, never a mix.
func Write(dir string, enc *Encoded) error {
	logger := slog.Default().With("component", "artifact-writer")
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating artifact parent directory: %w", err)
	}
	tmpDir, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp artifact directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmpDir)
		}
	}()

	if err := os.Chmod(tmpDir, 0755); err != nil {
		return fmt.Errorf("setting artifact directory mode: %w", err)
	}
	for _, f := range enc.Partitions {
		if err := writeSynced(filepath.Join(tmpDir, filepath.FromSlash(f.Path)), f.Data); err != nil {
			return err
		}
	}
	// The manifest goes last: a directory without one is never valid.
	if err := writeSynced(filepath.Join(tmpDir, ManifestFile), enc.Manifest); err != nil {
		return err
	}

	var oldDir string
	if _, err := os.Stat(dir); err == nil {
		oldDir = fmt.Sprintf("%s.old-%d", dir, time.Now().UnixNano())
		if err := os.Rename(dir, oldDir); err != nil {
			return fmt.Errorf("moving previous artifact aside: %w", err)
		}
	}
	if err := os.Rename(tmpDir, dir); err != nil {
		if oldDir != "" {
			if rbErr := os.Rename(oldDir, dir); rbErr != nil {
				logger.Error("restoring previous artifact failed", "dir", dir, "error", rbErr)
			}
		}
		return fmt.Errorf("renaming artifact into place: %w", err)
	}
	committed = true
	if oldDir != "" {
		if err := os.RemoveAll(oldDir); err != nil {
			logger.Warn("removing previous artifact failed", "dir", oldDir, "error", err)
		}
	}
	logger.Info("artifact written",
		"dir", dir,
		"partitions", len(enc.Partitions),
		"manifest_bytes", len(enc.Manifest),
	)
	return nil
}

func writeSynced(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}
