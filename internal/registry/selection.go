// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/ManuGH/ingestwatch/internal/session"
)

// Selection is one file chosen by the user. Open is called once, by the
// submission, and the payload is closed right after it has been sent.
type Selection struct {
	File session.FileInfo
	Open func() (io.ReadCloser, error)
}

// FromPath builds a selection for a file on disk.
func FromPath(path string) (Selection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Selection{}, err
	}
	if !info.Mode().IsRegular() {
		return Selection{}, fmt.Errorf("%s: not a regular file", path)
	}
	return Selection{
		File: session.FileInfo{
			Name:     filepath.Base(path),
			Size:     info.Size(),
			MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		},
		Open: func() (io.ReadCloser, error) {
			// #nosec G304 -- paths are chosen by the operator
			return os.Open(path)
		},
	}, nil
}
