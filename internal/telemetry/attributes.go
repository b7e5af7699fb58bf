// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by ingestwatch spans.
const (
	SessionIDKey = "ingestwatch.session_id"
	FileNameKey  = "ingestwatch.file.name"
	FileSizeKey  = "ingestwatch.file.size"
	ServiceIDKey = "ingestwatch.service_id"
	StatusKey    = "ingestwatch.service.status"
	ErrorKindKey = "ingestwatch.error.kind"
	ErrorCodeKey = "ingestwatch.error.code"
)

// UploadAttributes describes one submission.
func UploadAttributes(sessionID, fileName string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(FileNameKey, fileName),
		attribute.Int64(FileSizeKey, size),
	}
}

// ProbeAttributes describes one liveness check.
func ProbeAttributes(serviceID, endpoint string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ServiceIDKey, serviceID),
		attribute.String("url.full", endpoint),
	}
}

// FailureAttributes describes a classified failure. Empty values are omitted.
func FailureAttributes(kind, code string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if kind != "" {
		attrs = append(attrs, attribute.String(ErrorKindKey, kind))
	}
	if code != "" {
		attrs = append(attrs, attribute.String(ErrorCodeKey, code))
	}
	return attrs
}
