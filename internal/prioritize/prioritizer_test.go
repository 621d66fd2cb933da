package prioritize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderHomepageFirst(t *testing.T) {
	p := New(50)
	got := p.Order("https://example.com", []string{
		"https://example.com/blog/post-1",
		"https://example.com/contact",
	})
	require.NotEmpty(t, got)
	require.Equal(t, "https://example.com/", got[0])
	require.Equal(t, "https://example.com/contact", got[1])
}

func TestOrderContactBeatsBlog(t *testing.T) {
	p := New(50)
	got := p.Order("https://example.com", []string{
		"https://example.com/blog/2024/some-long-article",
		"https://example.com/products",
		"https://example.com/about",
		"https://example.com/contact",
		"https://example.com/support/help-center",
	})
	require.Equal(t, "https://example.com/contact", got[1])
	// About and support outrank unscored pages.
	require.Contains(t, got[2:4], "https://example.com/about")
}

func TestOrderCapAlwaysKeepsHomepage(t *testing.T) {
	var discovered []string
	for i := 0; i < 200; i++ {
		discovered = append(discovered, fmt.Sprintf("https://example.com/page-%d", i))
	}
	discovered = append(discovered, "https://example.com/contact")

	p := New(10)
	got := p.Order("https://example.com", discovered)
	require.Len(t, got, 10)
	require.Equal(t, "https://example.com/", got[0])
	require.Equal(t, "https://example.com/contact", got[1])
}

func TestOrderDropsForeignHosts(t *testing.T) {
	p := New(50)
	got := p.Order("https://example.com", []string{
		"https://other.com/contact",
		"https://example.com/contact",
	})
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/contact",
	}, got)
}

func TestOrderDeduplicates(t *testing.T) {
	p := New(50)
	got := p.Order("https://example.com", []string{
		"https://example.com/contact",
		"https://example.com/contact/",
		"https://Example.com:443/contact",
		"https://example.com",
	})
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/contact",
	}, got)
}

func TestOrderStableForTies(t *testing.T) {
	p := New(50)
	discovered := []string{
		"https://example.com/alpha",
		"https://example.com/beta",
		"https://example.com/gamma",
	}
	got := p.Order("https://example.com", discovered)
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/alpha",
		"https://example.com/beta",
		"https://example.com/gamma",
	}, got)
}

func TestGroupOf(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/contact", "contact"},
		{"https://example.com/kontakty", "contact"},
		{"https://example.com/контакты", "contact"},
		{"https://example.com/about", "about"},
		{"https://example.com/support", "support"},
		{"https://example.com/email", "mail"},
		{"https://example.com/partners", "ads"},
		{"https://example.com/contact-us", "contact"},
		{"https://example.com/about-us-page", "about"},
		{"https://example.com/blog/post", ""},
		{"https://example.com/", ""},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			require.Equal(t, tc.want, GroupOf(tc.url))
		})
	}
}

func TestScoreExactSegmentOutweighsSubstring(t *testing.T) {
	exact := score("https://example.com/contact")
	substring := score("https://example.com/contact-info-page")
	require.Greater(t, exact, substring)
	require.Greater(t, substring, 0)
}

func TestAllKeywordsFlattensGroups(t *testing.T) {
	all := AllKeywords()
	total := 0
	for _, group := range KeywordGroups {
		total += len(group)
	}
	require.Len(t, all, total)
	require.Contains(t, all, "contact")
	require.Contains(t, all, "feedback")
}
