// Package csp builds Content-Security-Policy header values.
package csp

import (
	"strings"
)

// Builder assembles a Content-Security-Policy value with a fluent interface.
//
//	policy := csp.NewBuilder().
//	    DefaultSrc("'none'").
//	    StyleSrc("'unsafe-inline'").
//	    Build()
//	// "default-src 'none'; style-src 'unsafe-inline'"
//
// A Builder is not safe for concurrent use; build the string once and share it.
type Builder struct {
	directives map[string][]string
	reportOnly bool
}

// directiveOrder fixes the output order so headers are stable across builds.
var directiveOrder = []string{
	"default-src",
	"script-src",
	"style-src",
	"img-src",
	"font-src",
	"connect-src",
	"frame-ancestors",
	"form-action",
	"base-uri",
	"object-src",
	"report-uri",
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{directives: make(map[string][]string)}
}

// Set replaces the sources of one directive. Directives outside the known set are ignored by Build.
func (b *Builder) Set(directive string, sources ...string) *Builder {
	b.directives[directive] = sources
	return b
}

// DefaultSrc sets the fallback for every fetch directive.
func (b *Builder) DefaultSrc(sources ...string) *Builder { return b.Set("default-src", sources...) }

// StyleSrc sets style-src. The digest pages only use inline styles.
func (b *Builder) StyleSrc(sources ...string) *Builder { return b.Set("style-src", sources...) }

// ImgSrc sets img-src.
func (b *Builder) ImgSrc(sources ...string) *Builder { return b.Set("img-src", sources...) }

// FrameAncestors sets frame-ancestors, the CSP replacement for X-Frame-Options.
func (b *Builder) FrameAncestors(sources ...string) *Builder {
	return b.Set("frame-ancestors", sources...)
}

// FormAction sets form-action.
func (b *Builder) FormAction(sources ...string) *Builder { return b.Set("form-action", sources...) }

// BaseURI sets base-uri.
func (b *Builder) BaseURI(sources ...string) *Builder { return b.Set("base-uri", sources...) }

// ReportOnly switches the header to Content-Security-Policy-Report-Only.
func (b *Builder) ReportOnly(enabled bool) *Builder {
	b.reportOnly = enabled
	return b
}

// Build renders the directives in a fixed order. Directives without sources are skipped.
func (b *Builder) Build() string {
	parts := make([]string, 0, len(b.directives))
	for _, directive := range directiveOrder {
		if sources := b.directives[directive]; len(sources) > 0 {
			parts = append(parts, directive+" "+strings.Join(sources, " "))
		}
	}
	return strings.Join(parts, "; ")
}

// HeaderName returns the header the policy belongs in.
func (b *Builder) HeaderName() string {
	if b.reportOnly {
		return "Content-Security-Policy-Report-Only"
	}
	return "Content-Security-Policy"
}

// PagePolicy suits the server-rendered unsubscribe pages: inline styles and
// nothing else, no framing, no forms, no base rewriting.
func PagePolicy() *Builder {
	return NewBuilder().
		DefaultSrc("'none'").
		StyleSrc("'unsafe-inline'").
		FrameAncestors("'none'").
		FormAction("'none'").
		BaseURI("'none'")
}

// StrictPolicy blocks everything. Use it for JSON-only responses.
func StrictPolicy() *Builder {
	return NewBuilder().
		DefaultSrc("'none'").
		FrameAncestors("'none'")
}
