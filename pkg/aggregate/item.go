package aggregate

import (
	"bytes"
	"io"
	"os"
)

// Item is one uploaded file: a loose layer or an archive of layers.
type Item struct {
	// Name is the original filename; it becomes the display name of a loose
	// layer and decides, by extension, how the item is treated.
	Name string

	// Open returns the item's bytes. It may be called at most once per
	// aggregation and is not called at all for ignored or disabled items.
	Open func() (io.ReadCloser, error)
}

// BytesItem wraps in-memory content.
func BytesItem(name string, data []byte) Item {
	return Item{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FileItem refers to content stored on disk, such as a multipart temp file.
// The file is opened lazily.
func FileItem(name, path string) Item {
	return Item{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

func (it Item) read() ([]byte, error) {
	if it.Open == nil {
		return nil, os.ErrNotExist
	}
	rc, err := it.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
