// Package prioritize orders candidate URLs so contact-bearing pages are
// visited first and low-value pages fall off the processing cap.
package prioritize

import (
	"net/url"
	"sort"
	"strings"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// KeywordGroups maps a semantic group to the path keywords that identify it.
// Groups let the pipeline stop revisiting a page category once one of its
// pages already yielded results.
var KeywordGroups = map[string][]string{
	"contact": {"contact", "contacts", "kontakt", "kontakty", "связаться", "контакты", "feedback"},
	"about":   {"about", "o-nas", "о-нас"},
	"support": {"support", "help", "podderzhka", "поддержка"},
	"mail":    {"mail", "email", "pochta", "почта"},
	"ads": {
		"ads", "advertisements", "advertise", "advertising", "реклама", "рекламодателям",
		"partner", "partners", "partnership", "partnerstvo", "партнерство", "collaborate", "cooperation",
	},
}

// CommonPaths are probed on every site even when no link or sitemap names them.
var CommonPaths = []string{
	"/contact", "/contacts", "/about", "/feedback", "/support", "/help",
	"/ads", "/advertisements", "/advertise", "/advertising",
	"/partners", "/partnership", "/collaborate",
}

// AllKeywords flattens KeywordGroups for substring matching on links.
func AllKeywords() []string {
	var all []string
	for _, group := range KeywordGroups {
		all = append(all, group...)
	}
	return all
}

// GroupOf returns the keyword group a URL belongs to, or "" when none match.
// Matching is by exact path segment first, then by the contact-us/about-us
// patterns that segment matching misses.
func GroupOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	lower := strings.ToLower(rawURL)
	segments := strings.Split(strings.Trim(strings.ToLower(u.Path), "/"), "/")

	// Deterministic group order keeps scoring stable across runs.
	for _, name := range groupOrder {
		for _, keyword := range KeywordGroups[name] {
			for _, segment := range segments {
				if segment == keyword {
					return name
				}
			}
		}
	}
	if strings.Contains(lower, "contact-us") {
		return "contact"
	}
	if strings.Contains(lower, "about-us") {
		return "about"
	}
	return ""
}

var groupOrder = []string{"contact", "about", "support", "mail", "ads"}

// groupWeight ranks groups by how likely they are to hold contact details.
var groupWeight = map[string]int{
	"contact": 5,
	"mail":    4,
	"support": 3,
	"ads":     2,
	"about":   1,
}

type candidate struct {
	url   string
	score int
	order int
	depth int
}

// Prioritizer dedupes, scores and caps candidate URLs for one site.
type Prioritizer struct {
	maxURLs int
}

// New creates a Prioritizer. maxURLs <= 0 falls back to 50.
func New(maxURLs int) *Prioritizer {
	if maxURLs <= 0 {
		maxURLs = 50
	}
	return &Prioritizer{maxURLs: maxURLs}
}

// Order returns the processing order for a site. The homepage is always first
// and always included. Remaining URLs sort by descending keyword score, then
// shallower path, then original discovery order, truncated to the cap.
func (p *Prioritizer) Order(homepage string, discovered []string) []string {
	home, err := parsing.NormalizeURL(homepage)
	if err != nil {
		home = homepage
	}

	seen := map[string]bool{home: true}
	var rest []candidate
	for i, raw := range discovered {
		normalized, err := parsing.NormalizeURL(raw)
		if err != nil || seen[normalized] {
			continue
		}
		if parsing.Hostname(normalized) != parsing.Hostname(home) {
			continue
		}
		seen[normalized] = true
		rest = append(rest, candidate{
			url:   normalized,
			score: score(normalized),
			order: i,
			depth: pathDepth(normalized),
		})
	}

	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].score != rest[j].score {
			return rest[i].score > rest[j].score
		}
		if rest[i].depth != rest[j].depth {
			return rest[i].depth < rest[j].depth
		}
		return rest[i].order < rest[j].order
	})

	ordered := make([]string, 0, p.maxURLs)
	ordered = append(ordered, home)
	for _, c := range rest {
		if len(ordered) >= p.maxURLs {
			break
		}
		ordered = append(ordered, c.url)
	}
	return ordered
}

// score rates a URL by how strongly its path suggests contact information.
// Exact segment match counts more than a substring hit.
func score(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	path := strings.ToLower(u.Path)
	segments := strings.Split(strings.Trim(path, "/"), "/")

	total := 0
	for _, name := range groupOrder {
		weight := groupWeight[name]
		matched := 0
		for _, keyword := range KeywordGroups[name] {
			for _, segment := range segments {
				if segment == keyword {
					matched = 3
				}
			}
			if matched < 3 && strings.Contains(path, keyword) {
				matched = 2
			}
		}
		total += matched * weight
	}
	if strings.Contains(path, "contact-us") {
		total += 3 * groupWeight["contact"]
	}
	if strings.Contains(path, "about-us") {
		total += 3 * groupWeight["about"]
	}
	return total
}

func pathDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/") + 1
}
