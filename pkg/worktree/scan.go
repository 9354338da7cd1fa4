// Package worktree inspects the live working directory: which files exist,
// which are ignored, and how they differ from the index and HEAD.
package worktree

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/odvcencio/pocket/pkg/object"
)

// File is a regular file found in the working tree.
type File struct {
	Path    string // repo-relative, slash separated
	Size    int64
	ModTime time.Time
	Mode    string
}

// Scan walks the whole working tree and returns every non-ignored regular
// file, sorted by path. Symlinks and other special files are skipped.
func Scan(fs billy.Filesystem, m *Matcher) ([]File, error) {
	return ScanDir(fs, m, "")
}

// ScanDir is Scan restricted to the subtree at dir.
func ScanDir(fs billy.Filesystem, m *Matcher, dir string) ([]File, error) {
	var out []File
	if err := walk(fs, m, dir, &out); err != nil {
		return nil, fmt.Errorf("scan %q: %w", dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func walk(fs billy.Filesystem, m *Matcher, dir string, out *[]File) error {
	readPath := dir
	if readPath == "" {
		readPath = "."
	}
	infos, err := fs.ReadDir(readPath)
	if err != nil {
		return err
	}
	for _, info := range infos {
		rel := info.Name()
		if dir != "" {
			rel = path.Join(dir, info.Name())
		}
		switch {
		case info.IsDir():
			if m != nil && m.Ignored(rel, true) {
				continue
			}
			if err := walk(fs, m, rel, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if m != nil && m.Ignored(rel, false) {
				continue
			}
			*out = append(*out, File{
				Path:    rel,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Mode:    ModeFromFileInfo(info),
			})
		}
	}
	return nil
}

// IsMissing reports whether err from a stat means the path is absent,
// including when one of its parents has become a regular file.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// Stat returns the File for a single path, or ok=false if it is missing
// or not a regular file.
func Stat(fs billy.Filesystem, p string) (File, bool, error) {
	info, err := fs.Lstat(p)
	if err != nil {
		if IsMissing(err) {
			return File{}, false, nil
		}
		return File{}, false, err
	}
	if !info.Mode().IsRegular() {
		return File{}, false, nil
	}
	return File{Path: p, Size: info.Size(), ModTime: info.ModTime(), Mode: ModeFromFileInfo(info)}, true, nil
}

// HashFile returns the blob hash of the file's current content.
func HashFile(fs billy.Filesystem, p string) (object.Hash, error) {
	data, err := util.ReadFile(fs, p)
	if err != nil {
		return "", err
	}
	return object.HashObject(object.TypeBlob, data), nil
}
