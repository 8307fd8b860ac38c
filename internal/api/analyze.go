package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/heimdex/deepscan/internal/analysis"
	"github.com/heimdex/deepscan/internal/logging"
)

const (
	uploadField    = "video"
	ndjsonMIME     = "application/x-ndjson"
	maxFilenameLen = 128
)

var (
	errNoVideo    = errors.New("no video part")
	errNoFilename = errors.New("empty filename")
)

func analyzeHandler(cfg ServerConfig) http.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[ext] = true
	}

	return func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		log := logging.WithRequestID(cfg.Logger, requestID)

		if cfg.Analyzer == nil {
			WriteError(w, http.StatusServiceUnavailable, "analyzer not configured", "UNAVAILABLE")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)

		part, err := findVideoPart(r)
		switch {
		case isTooLarge(err):
			writeTooLarge(w, cfg.MaxUploadBytes)
			return
		case errors.Is(err, errNoFilename):
			WriteError(w, http.StatusBadRequest, "No file selected", "BAD_REQUEST")
			return
		case err != nil:
			WriteError(w, http.StatusBadRequest, "No video file provided", "BAD_REQUEST")
			return
		}

		filename := part.FileName()
		if !allowed[extension(filename)] {
			WriteError(w, http.StatusBadRequest, invalidTypeMessage(cfg.AllowedExtensions), "INVALID_FILE_TYPE")
			return
		}

		dir, err := os.MkdirTemp(cfg.ScratchDir, "deepscan-*")
		if err != nil {
			log.Error("failed to create scratch dir", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to store upload", "INTERNAL_ERROR")
			return
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn("failed to remove scratch dir", "dir", dir, "error", err)
			}
		}()

		path := filepath.Join(dir, sanitizeFilename(filename))
		size, err := saveUpload(path, part)
		if err != nil {
			if isTooLarge(err) {
				writeTooLarge(w, cfg.MaxUploadBytes)
				return
			}
			log.Error("failed to store upload", "error", err)
			WriteError(w, http.StatusBadRequest, "failed to read upload", "BAD_REQUEST")
			return
		}

		log.Info("upload stored", "file", filepath.Base(path), "bytes", size)

		if wantsStream(r) {
			streamAnalysis(w, r, cfg.Analyzer, path, log)
			return
		}

		result, err := cfg.Analyzer.AnalyzeFile(r.Context(), path, nil)
		if err != nil {
			status, code, msg := statusForError(err)
			WriteError(w, status, msg, code)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// findVideoPart advances the multipart stream to the video field. Other
// fields are drained and skipped.
func findVideoPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoVideo, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoVideo
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != uploadField {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, err
			}
			continue
		}
		if part.FileName() == "" {
			return nil, errNoFilename
		}
		return part, nil
	}
}

func saveUpload(path string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// statusForError maps an analysis failure to status, code and message.
func statusForError(err error) (int, string, string) {
	switch analysis.KindOf(err) {
	case analysis.KindConfig:
		return http.StatusInternalServerError, "CONFIG_ERROR", "Analysis is misconfigured"
	case analysis.KindDecode:
		return http.StatusBadRequest, "DECODE_ERROR", "Could not decode video"
	case analysis.KindNoFrames:
		return http.StatusBadRequest, "NO_FRAMES", "Could not extract frames from video"
	case analysis.KindScoring:
		return http.StatusServiceUnavailable, "SCORING_ERROR", "Frame analysis failed, please retry"
	case analysis.KindTimeout:
		return http.StatusGatewayTimeout, "TIMEOUT", "Analysis timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Analysis failed: " + err.Error()
	}
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ndjsonMIME)
}

// ndjsonWriter serializes events onto the response, one JSON object per line.
type ndjsonWriter struct {
	mu  sync.Mutex
	w   http.ResponseWriter
	rc  *http.ResponseController
	enc *json.Encoder
	log *slog.Logger
}

func newNDJSONWriter(w http.ResponseWriter, log *slog.Logger) *ndjsonWriter {
	w.Header().Set("Content-Type", ndjsonMIME)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	return &ndjsonWriter{w: w, rc: http.NewResponseController(w), enc: json.NewEncoder(w), log: log}
}

func (s *ndjsonWriter) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.log.Debug("stream write failed", "error", err)
		return
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log.Debug("stream flush failed", "error", err)
	}
}

func streamAnalysis(w http.ResponseWriter, r *http.Request, analyzer Analyzer, path string, log *slog.Logger) {
	stream := newNDJSONWriter(w, log)

	result, err := analyzer.AnalyzeFile(r.Context(), path, func(e analysis.Event) {
		stream.send(ProgressEvent{Type: EventProgress, Stage: e.Stage, Progress: e.Progress})
	})
	if err != nil {
		_, code, msg := statusForError(err)
		stream.send(ErrorEvent{Type: EventError, Error: msg, Code: code})
		return
	}
	stream.send(ResultEvent{Type: EventResult, Result: result})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	WriteError(w, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File too large. Maximum size is %dMB", limit/(1024*1024)), "FILE_TOO_LARGE")
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func invalidTypeMessage(exts []string) string {
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = displayExt(e)
	}
	switch len(names) {
	case 0:
		return "Invalid file type"
	case 1:
		return "Invalid file type. Please upload " + names[0]
	case 2:
		return "Invalid file type. Please upload " + names[0] + " or " + names[1]
	}
	return "Invalid file type. Please upload " + strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}

func displayExt(ext string) string {
	if ext == "webm" {
		return "WebM"
	}
	return strings.ToUpper(ext)
}

// sanitizeFilename keeps the base name, drops control characters and
// replaces anything other than letters, digits and "._-" with an underscore.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		out = "upload" + filepath.Ext(name)
	}
	if runes := []rune(out); len(runes) > maxFilenameLen {
		out = string(runes[len(runes)-maxFilenameLen:])
	}
	return out
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}
