package rpc

import (
	"regexp"
	"sync"

	"github.com/mnehpets/httprpc/codec"
)

// Template describes one response representation of an operation. Several
// templates may share a Name; UserAgent is a regular expression that must
// match the whole User-Agent header, and an empty pattern matches any agent.
type Template struct {
	Name        string
	ContentType string
	UserAgent   string
}

var agentCache sync.Map // string -> *regexp.Regexp

func compileAgent(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = ".*"
	}
	if re, ok := agentCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, err
	}
	agentCache.Store(pattern, re)
	return re, nil
}

// Select picks the template for a request. The first template, in
// declaration order, whose content type the Accept header explicitly
// accepts and whose agent pattern matches userAgent wins; failing that, the
// first whose content type is accepted; failing that, none. A wildcard
// "*/*" range does not select a template.
func Select(templates []Template, accept, userAgent string) (Template, bool) {
	i := selectIndex(templates, nil, accept, userAgent)
	if i < 0 {
		return Template{}, false
	}
	return templates[i], true
}

func selectIndex(templates []Template, compiled []*regexp.Regexp, accept, userAgent string) int {
	if len(templates) == 0 {
		return -1
	}
	ranges := codec.ParseAccept(accept)
	fallback := -1
	for i, t := range templates {
		if !codec.Accepts(ranges, t.ContentType) {
			continue
		}
		var re *regexp.Regexp
		if i < len(compiled) {
			re = compiled[i]
		} else {
			var err error
			if re, err = compileAgent(t.UserAgent); err != nil {
				continue
			}
		}
		if re.MatchString(userAgent) {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

// SelectTemplate is Select over op's templates.
func (op *Operation) SelectTemplate(accept, userAgent string) (Template, bool) {
	i := selectIndex(op.Templates, op.agentMatch, accept, userAgent)
	if i < 0 {
		return Template{}, false
	}
	return op.Templates[i], true
}
