package headless

import (
	"context"
	"fmt"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Noop is a fetcher used when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a Noop fetcher.
func NewNoop() *Noop { return &Noop{} }

// Fetch always fails so callers fall back to the static response.
func (n *Noop) Fetch(_ context.Context, request parsing.FetchRequest) (parsing.FetchResponse, error) {
	return parsing.FetchResponse{}, fmt.Errorf("headless rendering disabled for %s", request.URL)
}
