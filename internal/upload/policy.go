// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package upload

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ManuGH/ingestwatch/internal/session"
)

// Policy is the client-side check applied before any bytes are sent.
type Policy struct {
	AllowedExtensions []string // lower-case with leading dot; empty allows all
	MaxBytes          int64    // 0 = unlimited
}

// Check returns a *SubmitError when the file must not be submitted.
func (p Policy) Check(f session.FileInfo) error {
	if len(p.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !slices.Contains(p.AllowedExtensions, ext) {
			shown := ext
			if shown == "" {
				shown = "(none)"
			}
			return &SubmitError{
				Sentinel: ErrUnsupportedType,
				Message:  fmt.Sprintf("File type %s is not supported", shown),
			}
		}
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return &SubmitError{
			Sentinel: ErrTooLarge,
			Message:  fmt.Sprintf("File is %s, the limit is %s", humanBytes(f.Size), humanBytes(p.MaxBytes)),
		}
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
