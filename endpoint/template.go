package endpoint

import (
	"bytes"
	"errors"
	htmltmpl "html/template"
	"io"
	"net/http"
	texttmpl "text/template"
)

// Executor is the common surface of *text/template.Template and
// *html/template.Template.
type Executor interface {
	Execute(w io.Writer, data any) error
	ExecuteTemplate(w io.Writer, name string, data any) error
}

var (
	_ Executor = (*texttmpl.Template)(nil)
	_ Executor = (*htmltmpl.Template)(nil)
)

// TemplateRenderer renders a Go template into the response.
// Rendering is buffered so that execution errors surface before the
// response is committed.
//
// ContentType defaults to "text/html; charset=utf-8" for html/template and
// "text/plain; charset=utf-8" otherwise, unless an existing Content-Type
// header is already set.
//
// Name is optional; when set, ExecuteTemplate is used.
type TemplateRenderer struct {
	Status      int
	Template    Executor
	Name        string
	ContentType string
	Data        any
}

func (tr *TemplateRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if tr.Template == nil {
		return errors.New("endpoint: nil template")
	}

	var buf bytes.Buffer
	var err error
	if tr.Name != "" {
		err = tr.Template.ExecuteTemplate(&buf, tr.Name, tr.Data)
	} else {
		err = tr.Template.Execute(&buf, tr.Data)
	}
	if err != nil {
		return err
	}

	ct := tr.ContentType
	if ct == "" {
		if _, ok := tr.Template.(*htmltmpl.Template); ok {
			ct = "text/html; charset=utf-8"
		}
	}
	setContentType(w, contentTypeFor(ct))
	w.WriteHeader(statusOr(tr.Status, http.StatusOK))

	_, err = io.Copy(w, &buf)
	return err
}
