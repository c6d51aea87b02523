package mailer

import (
	"crypto/md5"
	"fmt"
	"html"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer renders campaign content with Liquid, caching parsed templates
// by content hash so a campaign body is parsed once per dispatch, not once
// per recipient.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // md5(source) -> *liquid.Template
}

// NewRenderer creates a renderer with the default filter set plus a
// "default" filter for fallback values ({{ name | default: "there" }}).
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	return &Renderer{engine: engine}
}

// Render expands Liquid variables in source. Missing variables render as
// empty strings; a parse error is returned so the caller can count the
// recipient as failed without aborting the batch.
func (r *Renderer) Render(source string, vars map[string]interface{}) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(source)))

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(key); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(key, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// BuildHTML assembles the final email body. The preheader, when present, is
// injected as a hidden span so inbox clients show it as the preview line.
func BuildHTML(content, preheader string) string {
	if preheader == "" {
		return content
	}
	hidden := fmt.Sprintf(
		`<span style="display:none;max-height:0;overflow:hidden;">%s</span>`,
		html.EscapeString(preheader))
	return hidden + content
}
