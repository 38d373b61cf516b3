// Package model defines the cart, order and payment data structures shared by
// the cart store, the checkout orchestrator and the remote API clients.
package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the canonical internal product shape.
// Carts hold a snapshot of it per item; it is never refreshed in place.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	Stock    int             `json:"stock,omitempty"`
	Images   ImageList       `json:"images,omitempty"`
}

// Image is a product image reference.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ImageList is the normalized image collection.
// Remote services send images either as ["url", ...] or as
// [{"url": "...", "alt": "..."}]; both decode into the same []Image.
type ImageList []Image

// UnmarshalJSON handles both ["url", ...] and [{"url","alt"}, ...] formats.
// Mixed arrays are accepted element by element.
func (l *ImageList) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A lone string shows up in some older payloads
		var s string
		if strErr := json.Unmarshal(data, &s); strErr == nil {
			*l = NormalizeImages([]string{s}, "")
			return nil
		}
		return fmt.Errorf("images: %w", err)
	}

	out := make(ImageList, 0, len(raw))
	for i, elem := range raw {
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, Image{URL: s})
			}
			continue
		}

		var img Image
		if err := json.Unmarshal(elem, &img); err != nil {
			return fmt.Errorf("images[%d]: %w", i, err)
		}
		if img.URL != "" {
			out = append(out, img)
		}
	}
	*l = out
	return nil
}

// NormalizeImages converts a bare URL list into []Image, using alt for every
// entry. Blank URLs are dropped.
func NormalizeImages(urls []string, alt string) ImageList {
	out := make(ImageList, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, Image{URL: u, Alt: alt})
	}
	return out
}

// Primary returns the first image, or the zero Image when there are none.
func (l ImageList) Primary() Image {
	if len(l) == 0 {
		return Image{}
	}
	return l[0]
}
