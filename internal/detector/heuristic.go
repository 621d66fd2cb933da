// Package detector decides when a fetched page needs headless rendering.
package detector

import (
	"bytes"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Heuristic implements a handful of rule-based promotions. A page is
// promoted when the served HTML is too thin to contain real content and
// carries markers of a client-rendered application.
type Heuristic struct {
	MinHTMLBytes int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minHTMLBytes int) *Heuristic {
	if minHTMLBytes <= 0 {
		minHTMLBytes = 2048
	}
	return &Heuristic{MinHTMLBytes: minHTMLBytes}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
}

// ShouldPromote decides whether a headless re-fetch is warranted.
func (h *Heuristic) ShouldPromote(resp parsing.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	if len(resp.Body) >= h.MinHTMLBytes {
		return false
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(resp.Body, marker) {
			return true
		}
	}
	return false
}
