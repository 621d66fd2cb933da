package detector

import (
	"strings"
	"testing"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	d := NewHeuristic(2048)

	cases := []struct {
		name string
		resp parsing.FetchResponse
		want bool
	}{
		{"non-200 never promoted", parsing.FetchResponse{StatusCode: 404}, false},
		{"empty body promoted", parsing.FetchResponse{StatusCode: 200}, true},
		{
			"thin spa shell promoted",
			parsing.FetchResponse{StatusCode: 200, Body: []byte(`<html><div id="root"></div></html>`)},
			true,
		},
		{
			"thin static page kept",
			parsing.FetchResponse{StatusCode: 200, Body: []byte(`<html><p>contact us at x@y.com</p></html>`)},
			false,
		},
		{
			"large page kept even with markers",
			parsing.FetchResponse{StatusCode: 200, Body: []byte(`<div id="root">` + strings.Repeat("x", 4096) + `</div>`)},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.ShouldPromote(tc.resp); got != tc.want {
				t.Fatalf("ShouldPromote() = %v, want %v", got, tc.want)
			}
		})
	}
}
