package webmention

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"willnorris.com/go/microformats"

	"github.com/mjm/serverless-blog/internal/models"
)

// fetchEntry retrieves the source page and extracts its primary h-entry as
// a flat property map. A page with no h-entry yields (nil, nil).
func (r *Receiver) fetchEntry(ctx context.Context, source string) (models.PropertyMap, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: source is not a valid URL", ErrBadRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch webmention source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching webmention source", resp.StatusCode)
	}

	data := microformats.Parse(resp.Body, u)
	entry := findEntry(data.Items)
	if entry == nil {
		return nil, nil
	}

	return flattenEntry(entry), nil
}

// findEntry walks the parsed items depth-first for the first h-entry.
func findEntry(items []*microformats.Microformat) *microformats.Microformat {
	for _, item := range items {
		for _, typ := range item.Type {
			if typ == "h-entry" {
				return item
			}
		}
		if entry := findEntry(item.Children); entry != nil {
			return entry
		}
	}
	return nil
}

// flattenEntry reduces a parsed h-entry to single-valued properties in the
// shape mentions are stored and rendered with. Multi-valued properties keep
// their first value.
func flattenEntry(entry *microformats.Microformat) models.PropertyMap {
	item := models.PropertyMap{}
	for name, values := range entry.Properties {
		if len(values) == 0 {
			continue
		}
		if v := flattenValue(values[0]); v != nil {
			item[name] = v
		}
	}
	return item
}

func flattenValue(value any) any {
	switch v := value.(type) {
	case string:
		return v
	case map[string]string:
		// e-* properties parse to {html, value}
		m := map[string]any{}
		for key, s := range v {
			m[key] = s
		}
		return m
	case map[string]any:
		return v
	case *microformats.Microformat:
		// nested card, typically the author
		card := map[string]any{}
		for name, nested := range v.Properties {
			if len(nested) == 0 {
				continue
			}
			if s, ok := nested[0].(string); ok {
				card[name] = s
			}
		}
		if v.Value != "" {
			card["value"] = v.Value
		}
		return card
	default:
		return nil
	}
}
