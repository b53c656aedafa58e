package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/target/webfront-auth/internal/errors"
)

// Body size limits of the JSON endpoints.
const (
	maxBasicLoginBody  = 1024
	maxUnsafeLoginBody = 4096
	maxImpersonateBody = 512
)

// errBodyTooLarge is returned by readJSONObject when the body exceeds its limit.
var errBodyTooLarge = errors.New("request body too large")

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrorID string
	Text    string
}

// WriteError writes the protocol error channel: {errorId, errorText}.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"errorId": p.ErrorID, "errorText": p.Text})
}

// writeAppError maps err to a status and writes it. Unclassified errors are
// logged and answered with a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := apperrors.GetCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "code", string(code), "error", err)
	}
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrorID: string(code),
		Text:    apperrors.GetMessage(err, http.StatusText(status)),
	})
}

// statusFor is the single mapping from error codes to HTTP statuses.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jsonObject is a decoded JSON object whose keys are matched case-insensitively.
type jsonObject map[string]any

// readJSONObject reads at most limit bytes and decodes a single JSON object.
// An empty body yields an empty object.
func readJSONObject(r *http.Request, limit int64) (jsonObject, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return jsonObject{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if obj == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("body must hold a single JSON object")
	}
	return jsonObject(obj), nil
}

// lookup finds key ignoring case.
func (o jsonObject) lookup(key string) (any, bool) {
	if v, ok := o[key]; ok {
		return v, true
	}
	for k, v := range o {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// str returns the string at key. A present non-string value is an error.
func (o jsonObject) str(key string) (string, bool, error) {
	v, ok := o.lookup(key)
	if !ok || v == nil {
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	return s, true, nil
}

// bodyError turns a readJSONObject failure into a 400.
func bodyError(err error) error {
	if errors.Is(err, errBodyTooLarge) {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Request body too large.")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Malformed JSON body.")
}
