package rpc

import (
	"context"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"mime"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/value"
)

// ViewSet loads template bodies by name from a file system. HTML content
// types are parsed with html/template, everything else with text/template.
// Parsed templates are cached.
//
// When the request carries a locale, a localized variant is preferred:
// for "stats.html" and en-AU, "stats_en_AU.html" then "stats_en.html" are
// tried before "stats.html".
type ViewSet struct {
	fsys fs.FS

	mu    sync.Mutex
	cache map[string]endpoint.Executor
}

// NewViewSet returns a ViewSet reading from fsys.
func NewViewSet(fsys fs.FS) *ViewSet {
	return &ViewSet{fsys: fsys, cache: map[string]endpoint.Executor{}}
}

// Renderer prepares a renderer that executes t with v as its data. The value
// is materialised with value.Native, so cursors are consumed here.
func (vs *ViewSet) Renderer(ctx context.Context, t Template, v value.Value) (endpoint.Renderer, error) {
	html := isHTML(t.ContentType)
	exec, err := vs.load(vs.localized(ctx, t.Name), html)
	if err != nil {
		return nil, err
	}
	data, err := value.Native(v)
	if err != nil {
		return nil, err
	}
	return &endpoint.TemplateRenderer{Template: exec, ContentType: t.ContentType, Data: data}, nil
}

func (vs *ViewSet) localized(ctx context.Context, name string) string {
	tag := Locale(ctx)
	if tag == language.Und {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	base, _ := tag.Base()
	var candidates []string
	if region, conf := tag.Region(); conf == language.Exact {
		candidates = append(candidates, stem+"_"+base.String()+"_"+region.String()+ext)
	}
	candidates = append(candidates, stem+"_"+base.String()+ext)
	for _, c := range candidates {
		if _, err := fs.Stat(vs.fsys, c); err == nil {
			return c
		}
	}
	return name
}

func (vs *ViewSet) load(name string, html bool) (endpoint.Executor, error) {
	key := name
	if html {
		key = "html:" + name
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if exec, ok := vs.cache[key]; ok {
		return exec, nil
	}

	src, err := fs.ReadFile(vs.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("rpc: template %s: %w", name, err)
	}
	var exec endpoint.Executor
	if html {
		exec, err = htmltmpl.New(name).Funcs(htmltmpl.FuncMap(templateFuncs)).Parse(string(src))
	} else {
		exec, err = texttmpl.New(name).Funcs(templateFuncs).Parse(string(src))
	}
	if err != nil {
		return nil, fmt.Errorf("rpc: template %s: %w", name, err)
	}
	vs.cache[key] = exec
	return exec, nil
}

var templateFuncs = texttmpl.FuncMap{
	"json": func(x any) (string, error) {
		v, err := value.Adapt(x)
		if err != nil {
			return "", err
		}
		b, err := codec.MarshalJSON(v)
		return string(b), err
	},
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
