// Package extract pulls email addresses and contact-form candidates out of
// fetched HTML documents.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/prioritize"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// DefaultEmailExcludes filters common extraction false positives.
var DefaultEmailExcludes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".css", ".js",
	"example.com", "test@", "@example", "noreply@",
}

// skipLinkExtensions are file downloads never worth visiting.
var skipLinkExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".pdf", ".zip", ".doc", ".docx"}

// FormKeywords drives the weighted contact-form heuristic.
var FormKeywords = struct {
	Attributes  []string
	NameFields  []string
	EmailFields []string
	MsgFields   []string
	Phrases     []string
}{
	Attributes:  []string{"contact", "feedback", "message", "msg", "mail", "form", "partner", "advertise", "collaboration"},
	NameFields:  []string{"name", "имя", "fname", "lname", "company", "компания", "organization"},
	EmailFields: []string{"email", "e-mail", "mail", "почта"},
	MsgFields:   []string{"message", "msg", "сообщение", "text", "body", "comment", "proposal", "предложение", "description", "описание"},
	Phrases: []string{
		"contact us", "send a message", "get in touch", "свяжитесь с нами",
		"advertise with us", "become a partner", "partnership inquiry",
		"collaboration", "сотрудничество", "стать партнером", "рекламодателям",
	},
}

// Extractor parses HTML for emails and contact forms.
type Extractor struct {
	emailExcludes []string
	threshold     int
}

// New creates an Extractor. Empty excludes fall back to DefaultEmailExcludes,
// a non-positive threshold to 5.
func New(emailExcludes []string, threshold int) *Extractor {
	if len(emailExcludes) == 0 {
		emailExcludes = DefaultEmailExcludes
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Extractor{emailExcludes: emailExcludes, threshold: threshold}
}

// Parse builds a goquery document from raw HTML.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Emails returns the valid email addresses found in mailto links and page
// text, lowercased and deduplicated in first-seen order.
func (e *Extractor) Emails(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var emails []string

	add := func(raw string) {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || seen[email] || !e.validEmail(email) {
			return
		}
		seen[email] = true
		emails = append(emails, email)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "mailto:") {
			return
		}
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		add(addr)
	})

	for _, match := range emailPattern.FindAllString(doc.Text(), -1) {
		add(match)
	}
	return emails
}

func (e *Extractor) validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at:], ".") {
		return false
	}
	for _, fp := range e.emailExcludes {
		if strings.Contains(email, fp) {
			return false
		}
	}
	return true
}

// Forms scores every form on the page and returns the candidates that reach
// the threshold, with the form action resolved against pageURL.
func (e *Extractor) Forms(doc *goquery.Document, pageURL string) []parsing.FormCandidate {
	var candidates []parsing.FormCandidate
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		score := scoreForm(form)
		if score < e.threshold {
			return
		}
		html, err := goquery.OuterHtml(form)
		if err != nil {
			html = ""
		}
		candidates = append(candidates, parsing.FormCandidate{
			ActionURL: resolveAction(form, pageURL),
			Score:     score,
			HTML:      html,
			Context:   surroundingText(form),
		})
	})
	return candidates
}

// scoreForm applies the weighted contact-form heuristic.
func scoreForm(form *goquery.Selection) int {
	score := 0

	action, _ := form.Attr("action")
	class, _ := form.Attr("class")
	id, _ := form.Attr("id")
	context := strings.ToLower(form.Text() + " " + action + " " + class + " " + id)

	for _, keyword := range FormKeywords.Attributes {
		if strings.Contains(context, keyword) {
			score += 2
		}
	}
	for _, phrase := range FormKeywords.Phrases {
		if strings.Contains(context, phrase) {
			score += 3
		}
	}

	hasEmail := false
	hasMessage := false
	hasName := false
	hasSubmit := false

	form.Find("input, textarea, select, button").Each(func(_ int, field *goquery.Selection) {
		nodeName := goquery.NodeName(field)
		fieldType, _ := field.Attr("type")
		fieldType = strings.ToLower(fieldType)

		if nodeName == "button" || fieldType == "submit" {
			hasSubmit = true
			if nodeName == "button" {
				return
			}
		}

		name, _ := field.Attr("name")
		placeholder, _ := field.Attr("placeholder")
		fieldID, _ := field.Attr("id")
		fieldText := strings.ToLower(name + " " + placeholder + " " + fieldID)

		if fieldType == "email" || containsAny(fieldText, FormKeywords.EmailFields) {
			hasEmail = true
			score += 4
		}
		if nodeName == "textarea" || containsAny(fieldText, FormKeywords.MsgFields) {
			hasMessage = true
			score += 3
		}
		if containsAny(fieldText, FormKeywords.NameFields) {
			hasName = true
			score += 2
		}
		if containsAny(fieldText, []string{"contact", "phone", "subject"}) {
			score += 2
		}
	})

	if hasEmail && hasMessage {
		score += 3
	}
	if hasEmail && hasName {
		score += 2
	}
	if hasSubmit {
		score++
	}

	// Search widgets and newsletter boxes tucked into chrome are not
	// contact forms even when their fields look the part.
	if form.ParentsFiltered("nav, footer").Length() > 0 {
		score -= 3
	}
	return score
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func resolveAction(form *goquery.Selection, pageURL string) string {
	action, ok := form.Attr("action")
	action = strings.TrimSpace(action)
	if !ok || action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(action)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}

// surroundingText returns the collapsed text around the form, capped so AI
// prompts stay small.
func surroundingText(form *goquery.Selection) string {
	text := strings.Join(strings.Fields(form.Parent().Text()), " ")
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}

// KeywordLinks harvests same-site links whose URL or anchor text mention a
// contact-related keyword, resolved absolute against baseURL.
func KeywordLinks(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	keywords := prioritize.AllKeywords()

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		absolute := base.ResolveReference(ref)
		if absolute.Scheme != "http" && absolute.Scheme != "https" {
			return
		}
		if !strings.HasSuffix(strings.ToLower(absolute.Hostname()), strings.ToLower(base.Hostname())) {
			return
		}
		lowerURL := strings.ToLower(absolute.String())
		if hasSkippedExtension(lowerURL) {
			return
		}
		text := strings.ToLower(s.Text())
		if !containsAny(lowerURL, keywords) && !containsAny(text, keywords) {
			return
		}
		normalized, err := parsing.NormalizeURL(absolute.String())
		if err != nil || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}

// Title returns the trimmed document title, or "" when absent.
func Title(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func hasSkippedExtension(lowerURL string) bool {
	for _, ext := range skipLinkExtensions {
		if strings.HasSuffix(lowerURL, ext) {
			return true
		}
	}
	return false
}
