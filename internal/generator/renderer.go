package generator

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/blob"
	"github.com/mjm/serverless-blog/internal/models"
)

// Renderer renders a tenant's templates. The template set is parsed once
// from the tenant's blob storage and reused for every job the renderer
// serves.
type Renderer struct {
	tmpl *template.Template
}

func newRenderer(site *models.SiteConfig, sources map[string]string) (*Renderer, error) {
	root := template.New("").Funcs(templateFuncs(site))
	for name, src := range sources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}
	return &Renderer{tmpl: root}, nil
}

func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RendererCache holds one renderer per tenant for the lifetime of the
// process. Template assets are expensive to fetch and parse, so renderers
// are shared across the jobs handled by the same worker; the cache is
// invalidated wholesale before each new batch so redeployed templates are
// always honored.
type RendererCache struct {
	mu        sync.Mutex
	loader    blob.TemplateLoader
	logger    *zap.Logger
	renderers map[string]*Renderer
}

func NewRendererCache(loader blob.TemplateLoader, logger *zap.Logger) *RendererCache {
	return &RendererCache{
		loader:    loader,
		logger:    logger.With(zap.String("component", "renderer-cache")),
		renderers: make(map[string]*Renderer),
	}
}

// Get returns the tenant's renderer, building it on first use.
func (c *RendererCache) Get(ctx context.Context, site *models.SiteConfig) (*Renderer, error) {
	c.mu.Lock()
	if r, ok := c.renderers[site.TenantID]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	sources, err := c.loader.LoadTemplates(ctx, site.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates for %s: %w", site.TenantID, err)
	}

	r, err := newRenderer(site, sources)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.renderers[site.TenantID] = r
	c.mu.Unlock()

	c.logger.Debug("Built renderer",
		zap.String("tenant_id", site.TenantID),
		zap.Int("templates", len(sources)))
	return r, nil
}

// Invalidate discards every cached renderer.
func (c *RendererCache) Invalidate() {
	c.mu.Lock()
	c.renderers = make(map[string]*Renderer)
	c.mu.Unlock()
}

func templateFuncs(site *models.SiteConfig) template.FuncMap {
	return template.FuncMap{
		"dateformat": func(layout string, t time.Time) string {
			return t.Format(layout)
		},
		"feedlinks": func() template.HTML {
			return template.HTML(`
    <link rel="alternate" type="application/feed+json" href="/feed.json" title="JSON Feed">
    <link rel="alternate" type="application/atom+xml" href="/feed.atom" title="Atom Feed">
    <link rel="alternate" type="application/rss+xml" href="/feed.rss" title="RSS Feed">
`)
		},
		"micropublinks": func() template.HTML {
			return template.HTML(`
    <link rel="authorization_endpoint" href="https://indieauth.com/auth">
    <link rel="token_endpoint" href="https://` + template.HTMLEscapeString(site.TenantID) + `/token">
    <link rel="micropub" href="https://` + template.HTMLEscapeString(site.TenantID) + `/micropub">
`)
		},
	}
}
