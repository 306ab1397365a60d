package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/layer"
)

// buildZip writes files into an in-memory archive. Names ending in "/" become
// directory entries.
func buildZip(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExpandFiltersEntries(t *testing.T) {
	files := map[string]string{
		"gerbers/top.gtl":            "top copper",
		"gerbers/paste.gtp":          "paste",
		"gerbers/readme.pdf":         "not a layer",
		"__MACOSX/gerbers/._top.gtl": "resource fork",
		"gerbers/._bottom.gbl":       "resource fork",
	}
	data := buildZip(t, files,
		"gerbers/",
		"gerbers/top.gtl",
		"gerbers/readme.pdf",
		"__MACOSX/gerbers/._top.gtl",
		"gerbers/._bottom.gbl",
		"gerbers/paste.gtp",
	)

	x := NewExpander(layer.DefaultPolicy().IsAllowed)
	entries, err := x.Expand(data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expand() returned %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].BaseName() != "top.gtl" || entries[1].BaseName() != "paste.gtp" {
		t.Errorf("entry order = %s, %s; want top.gtl, paste.gtp", entries[0].Name, entries[1].Name)
	}

	got, err := entries[1].Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "paste" {
		t.Errorf("Read() = %q, want %q", got, "paste")
	}
}

func TestListIncludesDirectories(t *testing.T) {
	data := buildZip(t, map[string]string{"a/top.gtl": "x"}, "a/", "a/top.gtl")

	entries, err := NewExpander(nil).List(data)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if !entries[0].Dir || entries[1].Dir {
		t.Errorf("Dir flags = %v, %v; want true, false", entries[0].Dir, entries[1].Dir)
	}
	if _, err := entries[0].Read(); err == nil {
		t.Error("Read() on directory should fail")
	}
}

func TestExpandNilAcceptYieldsAllFiles(t *testing.T) {
	data := buildZip(t, map[string]string{"a.txt": "1", "b.pdf": "2"}, "a.txt", "b.pdf")
	entries, err := NewExpander(nil).Expand(data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expand() returned %d entries, want 2", len(entries))
	}
}

func TestExpandCorruptArchive(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a zip", []byte("G04 this is a gerber file*\nM02*\n")},
		{"truncated", buildZip(t, map[string]string{"top.gtl": "x"}, "top.gtl")[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewExpander(nil).Expand(tt.data)
			if err == nil {
				t.Fatal("Expand() error = nil, want error")
			}
			if !errors.Is(err, errors.ErrCodeArchiveUnreadable) {
				t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.ErrCodeArchiveUnreadable)
			}
			if len(entries) != 0 {
				t.Errorf("Expand() returned %d entries on failure", len(entries))
			}
		})
	}
}

func TestEmptyArchive(t *testing.T) {
	data := buildZip(t, nil)
	entries, err := NewExpander(nil).Expand(data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expand() returned %d entries, want 0", len(entries))
	}
}

func TestReadRespectsMaxEntrySize(t *testing.T) {
	data := buildZip(t, map[string]string{"big.gbr": strings.Repeat("X", 100)}, "big.gbr")

	x := &Expander{MaxEntrySize: 10}
	entries, err := x.Expand(data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if _, err := entries[0].Read(); err == nil {
		t.Error("Read() should fail for entry above MaxEntrySize")
	}

	x = &Expander{MaxEntrySize: -1}
	entries, _ = x.Expand(data)
	if got, err := entries[0].Read(); err != nil || len(got) != 100 {
		t.Errorf("Read() with no cap = %d bytes, %v", len(got), err)
	}
}
