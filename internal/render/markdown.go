// Package render turns entry markdown into sanitized HTML documents.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/mithrel/whtreader/pkg/api"
)

// Fetcher downloads image bytes for inlining.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// The parser configuration never changes, so one instance is shared.
var markdown = sync.OnceValue(func() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// Raw HTML is common in entries; the sanitizer runs after rendering.
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
})

var sanitizer = sync.OnceValue(func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(false)
	p.RequireNoFollowOnFullyQualifiedLinks(true)
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowDataURIImages()
	return p
})

// Renderer converts entry markdown to HTML. The zero value renders without
// image inlining support.
type Renderer struct {
	fetcher Fetcher
}

// New returns a Renderer that inlines images through f.
func New(f Fetcher) *Renderer {
	return &Renderer{fetcher: f}
}

// Render returns markup as a complete HTML document. With inlineImages set,
// every image is downloaded and embedded as a data URI; a failed download
// fails the whole render.
func (r *Renderer) Render(ctx context.Context, markup string, inlineImages bool) (string, error) {
	frag, err := r.Fragment(ctx, markup, inlineImages)
	if err != nil {
		return "", err
	}
	return wrap(frag)
}

// Fragment is Render without the document template.
func (r *Renderer) Fragment(ctx context.Context, markup string, inlineImages bool) (string, error) {
	src := []byte(markup)
	doc := markdown().Parser().Parse(text.NewReader(src))

	var images []*ast.Image
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Link:
			markExternal(n, n.Destination)
		case *ast.AutoLink:
			markExternal(n, n.URL(src))
		case *ast.Image:
			images = append(images, n)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: walk document: %w", api.ErrRender, err)
	}

	if inlineImages && len(images) > 0 {
		if err := r.inline(ctx, images); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := markdown().Renderer().Render(&buf, src, doc); err != nil {
		return "", fmt.Errorf("%w: render html: %w", api.ErrRender, err)
	}
	return sanitizer().Sanitize(buf.String()), nil
}

// markExternal asks the display surface to open dest in a new context.
// In-document fragment links are left alone.
func markExternal(n ast.Node, dest []byte) {
	if len(dest) == 0 || dest[0] == '#' {
		return
	}
	n.SetAttributeString("target", []byte("_blank"))
}

func (r *Renderer) inline(ctx context.Context, images []*ast.Image) error {
	if r == nil || r.fetcher == nil {
		return fmt.Errorf("%w: image inlining requested without a fetcher", api.ErrRender)
	}
	seen := make(map[string]string)
	for _, img := range images {
		dest := string(img.Destination)
		if strings.HasPrefix(dest, "data:") {
			continue
		}
		uri, ok := seen[dest]
		if !ok {
			data, err := r.fetcher.FetchBytes(ctx, dest)
			if err != nil {
				return fmt.Errorf("%w: inline image %s: %w", api.ErrRender, dest, err)
			}
			uri = DataURI(data)
			seen[dest] = uri
		}
		img.Destination = []byte(uri)
	}
	return nil
}

// DataURI encodes data as a base64 data URI. Unrecognized content is
// labelled image/png.
func DataURI(data []byte) string {
	return "data:" + imageType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func imageType(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/gif", "image/jpeg", "image/png", "image/webp":
		return ct
	default:
		return "image/png"
	}
}
