// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package upload submits files to the ingestion backend.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/platform/httpx"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/ManuGH/ingestwatch/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Form field names of the submission request.
const (
	FieldSessionID = "sessionId"
	FieldFile      = "file"
)

const maxErrorBody = 8 << 10

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Submitter hands one file to the backend. A nil error means the backend
// accepted the submission.
type Submitter interface {
	Submit(ctx context.Context, sessionID string, file session.FileInfo, body io.Reader) error
}

// Client posts multipart submissions to the backend upload endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a submission client for the absolute upload URL. A nil
// httpClient selects an instrumented httpx upload client.
func NewClient(uploadURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpx.Instrument(httpx.NewUploadClient(0), "upload.submit")
	}
	return &Client{
		url:    uploadURL,
		http:   httpClient,
		logger: log.WithComponent("upload"),
	}
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail"`
}

// Submit streams the file as multipart/form-data. The body is read once and
// not retained. 4xx responses are ErrRejected, transport failures and 5xx
// responses are ErrTransport.
func (c *Client) Submit(ctx context.Context, sessionID string, file session.FileInfo, body io.Reader) (err error) {
	ctx, span := telemetry.Tracer("ingestwatch/upload").Start(ctx, "upload.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.UploadAttributes(sessionID, file.Name, file.Size)...))
	defer func() {
		if err != nil {
			d := Detail(err)
			span.SetAttributes(telemetry.FailureAttributes(string(d.Kind), d.Code)...)
			span.SetStatus(codes.Error, d.Message)
		}
		span.End()
	}()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		_ = pw.CloseWithError(writeForm(mw, sessionID, file, body))
	}()
	defer func() {
		_ = pr.Close()
		<-writerDone
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		return &SubmitError{Sentinel: ErrTransport, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "upload.transport_failed").
			Str(log.FieldSessionID, sessionID).
			Msg("upload submission failed")
		return &SubmitError{Sentinel: ErrTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Info().
			Str(log.FieldEvent, "upload.accepted").
			Str(log.FieldSessionID, sessionID).
			Str(log.FieldFileName, file.Name).
			Int64(log.FieldFileSize, file.Size).
			Msg("backend accepted submission")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		se := &SubmitError{Sentinel: ErrRejected, Status: resp.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&eb); err == nil {
			se.Code = firstNonEmpty(eb.ErrorCode, eb.Code)
			se.Message = firstNonEmpty(eb.Message, eb.Detail)
		}
		c.logger.Warn().
			Str(log.FieldEvent, "upload.rejected").
			Str(log.FieldSessionID, sessionID).
			Int("status", resp.StatusCode).
			Str(log.FieldErrorCode, se.Code).
			Msg("backend rejected submission")
		return se
	default:
		c.logger.Warn().
			Str(log.FieldEvent, "upload.server_error").
			Str(log.FieldSessionID, sessionID).
			Int("status", resp.StatusCode).
			Msg("backend failed submission")
		return &SubmitError{Sentinel: ErrTransport, Status: resp.StatusCode}
	}
}

func writeForm(mw *multipart.Writer, sessionID string, file session.FileInfo, body io.Reader) error {
	if err := mw.WriteField(FieldSessionID, sessionID); err != nil {
		return err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldFile, quoteEscaper.Replace(file.Name)))
	ct := file.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if body == nil {
		return errors.New("upload: nil body")
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return mw.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
