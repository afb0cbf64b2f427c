package middleware

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// LocaleProcessor negotiates the request locale from Accept-Language
// against the supported tags and stores it with rpc.WithLocale. The first
// supported tag is the fallback. A "lang" query parameter overrides the
// header.
type LocaleProcessor struct {
	matcher   language.Matcher
	supported []language.Tag
}

// NewLocaleProcessor returns a processor for the supported locales. With no
// tags, requests carry language.Und.
func NewLocaleProcessor(supported ...language.Tag) *LocaleProcessor {
	p := &LocaleProcessor{supported: supported}
	if len(supported) > 0 {
		p.matcher = language.NewMatcher(supported)
	}
	return p
}

// ParseLocales parses a list of BCP 47 tags such as "en-AU,fr".
func ParseLocales(tags []string) ([]language.Tag, error) {
	out := make([]language.Tag, 0, len(tags))
	for _, s := range tags {
		t, err := language.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *LocaleProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.matcher == nil {
		return next(w, r)
	}
	var prefs []string
	if lang := r.URL.Query().Get("lang"); lang != "" {
		prefs = append(prefs, lang)
	}
	prefs = append(prefs, r.Header.Get("Accept-Language"))

	_, i := language.MatchStrings(p.matcher, prefs...)
	tag := p.supported[i]
	w.Header().Add("Vary", "Accept-Language")
	w.Header().Set("Content-Language", tag.String())
	return next(w, r.WithContext(rpc.WithLocale(r.Context(), tag)))
}

var _ endpoint.Processor = (*LocaleProcessor)(nil)
