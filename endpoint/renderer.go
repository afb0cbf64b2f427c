package endpoint

import (
	"io"
	"net/http"
)

const plainText = "text/plain; charset=utf-8"

// StringRenderer writes Body with Status (200 when zero). ContentType
// defaults to plain UTF-8 text.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, sr.ContentType)
	w.WriteHeader(statusOr(sr.Status, http.StatusOK))
	if sr.Body == "" {
		return nil
	}
	_, err := io.WriteString(w, sr.Body)
	return err
}

// NoContentRenderer writes only a status line, 204 when Status is zero.
type NoContentRenderer struct {
	Status int
}

func (nc *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(statusOr(nc.Status, http.StatusNoContent))
	return nil
}

// setContentType leaves a Content-Type chosen by an earlier processor alone.
func setContentType(w http.ResponseWriter, contentType string) {
	h := w.Header()
	if h.Get("Content-Type") != "" {
		return
	}
	if contentType == "" {
		contentType = plainText
	}
	h.Set("Content-Type", contentType)
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}
