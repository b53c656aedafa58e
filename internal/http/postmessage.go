package httpx

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	apperrors "github.com/target/webfront-auth/internal/errors"
)

//go:embed pages/*.gohtml
var pagesFS embed.FS

var pages = template.Must(template.ParseFS(pagesFS, "pages/*.gohtml"))

// postMessagePage delivers a login outcome to the opener window.
type postMessagePage struct {
	Data   authResponse
	Origin string
}

// callbackPage forwards a sealed completion to endLogin.
type callbackPage struct {
	Action     string
	Completion string
	ReturnURL  string
}

// renderPage executes a page into a buffer first: a template failure returns
// an error before anything has been written to w.
func renderPage(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return apperrors.Wrap(fmt.Errorf("render %s: %w", name, err), apperrors.ErrCodeInternal, "Unable to render the page.")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	// Response writer errors (e.g., client disconnect) can't be recovered from here.
	_, _ = buf.WriteTo(w)
	return nil
}

// writePage renders a page, answering with a 500 when the page cannot be rendered.
func (h *WebFrontHandlers) writePage(w http.ResponseWriter, r *http.Request, name string, data any) {
	if err := renderPage(w, name, data); err != nil {
		writeAppError(w, r, h.logger(), err)
	}
}
