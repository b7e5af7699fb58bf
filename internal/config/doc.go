// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the ingestwatch configuration.
//
// Precedence is ENV > file > defaults. The file is decoded strictly (unknown
// keys are fatal) and the result is validated once at startup; nothing is
// re-read at runtime.
package config
