package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	scouterr "github.com/Itsme23476/filescout/internal/errors"
)

// FileEntry is one candidate file discovered by the walk.
type FileEntry struct {
	Path     string // Absolute path
	Name     string
	Ext      string
	Category string
	Size     int64
	ModTime  time.Time
}

// Walk discovers indexable files under root, sorted by path so runs
// are deterministic and the resume cursor is meaningful. Hidden,
// system, and temp files are skipped, as are files over maxSize bytes
// (0 = unlimited).
func Walk(root string, maxSize int64) ([]FileEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeInvalidPath, err)
	}

	var entries []FileEntry
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A root that cannot be listed must fail the walk; an empty
			// result here would read as "everything vanished" and feed
			// the deletion pass.
			if path == absRoot {
				return err
			}
			// Unreadable subtrees are skipped, not fatal
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != absRoot && SkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || SkipFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxSize > 0 && info.Size() > maxSize {
			return nil
		}

		entries = append(entries, FileEntry{
			Path:     path,
			Name:     d.Name(),
			Ext:      Extension(d.Name()),
			Category: Categorize(d.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}
