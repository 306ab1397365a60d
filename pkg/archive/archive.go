// Package archive lists and reads layer files bundled in zip archives.
//
// An [Expander] only lists entries and reads bytes. It never extracts to disk
// and never trusts entry paths: callers receive the entry name and decide on a
// display name themselves (usually the base name).
//
// Archive-level failures (not a zip, truncated central directory) are reported
// as a single ARCHIVE_UNREADABLE error so the caller can treat the archive as
// contributing zero entries. Per-entry failures surface only when that entry's
// bytes are read.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/stentech/gerberstack/pkg/errors"
)

// DefaultMaxEntrySize caps the uncompressed size of a single entry. Layer files
// are text; anything larger is almost certainly not a layer.
const DefaultMaxEntrySize = 64 << 20

// Entry is one file or directory inside an archive.
type Entry struct {
	Name string // path within the archive, slash separated
	Dir  bool
	Size uint64 // uncompressed size as declared by the archive

	file    *zip.File
	maxSize int64
}

// Read returns the uncompressed bytes of the entry.
func (e Entry) Read() ([]byte, error) {
	if e.Dir {
		return nil, fmt.Errorf("%s: is a directory", e.Name)
	}
	if e.file == nil {
		return nil, fmt.Errorf("%s: entry not backed by an archive", e.Name)
	}
	if e.maxSize > 0 && e.Size > uint64(e.maxSize) {
		return nil, fmt.Errorf("%s: entry too large (%d bytes, max %d)", e.Name, e.Size, e.maxSize)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if e.maxSize > 0 {
		r = io.LimitReader(rc, e.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	if e.maxSize > 0 && int64(len(data)) > e.maxSize {
		return nil, fmt.Errorf("%s: entry too large (max %d bytes)", e.Name, e.maxSize)
	}
	return data, nil
}

// BaseName returns the last path element of the entry name.
func (e Entry) BaseName() string {
	return path.Base(e.Name)
}

// Expander lists archive entries that pass an acceptance filter.
type Expander struct {
	// Accept decides whether a non-directory entry is yielded. A nil Accept
	// yields every file.
	Accept func(name string) bool

	// MaxEntrySize caps the bytes read per entry; 0 means DefaultMaxEntrySize,
	// a negative value disables the cap.
	MaxEntrySize int64
}

// NewExpander creates an expander yielding entries whose names accept returns
// true for.
func NewExpander(accept func(name string) bool) *Expander {
	return &Expander{Accept: accept}
}

// List returns every entry of the archive in central-directory order,
// directories included.
func (x *Expander) List(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "open archive")
	}

	maxSize := x.maxEntrySize()
	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		entries = append(entries, Entry{
			Name:    name,
			Dir:     f.FileInfo().IsDir() || strings.HasSuffix(name, "/"),
			Size:    f.UncompressedSize64,
			file:    f,
			maxSize: maxSize,
		})
	}
	return entries, nil
}

// Expand returns the file entries of the archive accepted by the filter,
// skipping directories and filesystem metadata (macOS resource forks).
// Entry bytes are not read until Entry.Read is called.
func (x *Expander) Expand(data []byte) ([]Entry, error) {
	all, err := x.List(data)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Dir || isMetadata(e.Name) {
			continue
		}
		if x.Accept != nil && !x.Accept(e.Name) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (x *Expander) maxEntrySize() int64 {
	switch {
	case x.MaxEntrySize == 0:
		return DefaultMaxEntrySize
	case x.MaxEntrySize < 0:
		return 0
	default:
		return x.MaxEntrySize
	}
}

// isMetadata reports entries written by archivers rather than by the CAM tool.
func isMetadata(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), "._")
}
