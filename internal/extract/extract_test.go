package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmailsDedupAndOrder(t *testing.T) {
	html := `<html><body>
		<a href="mailto:Sales@Example.org?subject=hi">Write us</a>
		<p>Reach sales@example.org or support@example.org for help.</p>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 0)
	emails := e.Emails(doc)
	require.Equal(t, []string{"sales@example.org", "support@example.org"}, emails)
}

func TestEmailsFalsePositives(t *testing.T) {
	html := `<html><body>
		<p>icon@2x.png styles@site.css noreply@shop.io test@shop.io hello@example.com</p>
		<p>real@shop.io</p>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 0)
	require.Equal(t, []string{"real@shop.io"}, e.Emails(doc))
}

func TestFormsEmailPlusMessageScoresAboveThreshold(t *testing.T) {
	html := `<html><body>
		<form action="/send">
			<input type="email" name="email">
			<textarea name="message"></textarea>
			<button type="submit">Send</button>
		</form>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 5)
	forms := e.Forms(doc, "https://shop.io/contact")
	require.Len(t, forms, 1)
	require.Equal(t, "https://shop.io/send", forms[0].ActionURL)
	require.GreaterOrEqual(t, forms[0].Score, 5)
}

func TestFormsBelowThresholdNeverSurface(t *testing.T) {
	html := `<html><body>
		<form action="/search">
			<input type="text" name="q" placeholder="Search...">
		</form>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 5)
	require.Empty(t, e.Forms(doc, "https://shop.io/"))
}

func TestFormsFooterNewsletterPenalized(t *testing.T) {
	newsletter := `<form action="/newsletter"><input type="email" name="email"></form>`

	bare, err := Parse([]byte("<html><body>" + newsletter + "</body></html>"))
	require.NoError(t, err)
	inFooter, err := Parse([]byte("<html><body><footer>" + newsletter + "</footer></body></html>"))
	require.NoError(t, err)

	e := New(nil, 1)
	bareForms := e.Forms(bare, "https://shop.io/")
	footerForms := e.Forms(inFooter, "https://shop.io/")
	require.NotEmpty(t, bareForms)
	require.NotEmpty(t, footerForms)
	require.Equal(t, bareForms[0].Score-3, footerForms[0].Score)
}

func TestFormsEmptyActionFallsBackToPageURL(t *testing.T) {
	html := `<html><body>
		<form id="contact-form">
			<input type="email" name="email">
			<input type="text" name="name">
			<textarea name="message"></textarea>
		</form>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 5)
	forms := e.Forms(doc, "https://shop.io/contact")
	require.Len(t, forms, 1)
	require.Equal(t, "https://shop.io/contact", forms[0].ActionURL)
}

func TestFormsContactPhraseScoring(t *testing.T) {
	html := `<html><body>
		<form action="/go" class="contact-form">
			<p>Get in touch</p>
			<input type="text" name="phone">
		</form>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	e := New(nil, 5)
	forms := e.Forms(doc, "https://shop.io/")
	// contact attribute +2, form attribute +2, phrase +3, phone field +2.
	require.Len(t, forms, 1)
}

func TestKeywordLinks(t *testing.T) {
	html := `<html><body>
		<a href="/contact">Contact</a>
		<a href="/blog/post-1">A post</a>
		<a href="/pricing">Контакты</a>
		<a href="https://other.com/contact">External</a>
		<a href="/brochure.pdf">Contact brochure</a>
		<a href="mailto:x@shop.io">Mail</a>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	links := KeywordLinks(doc, "https://shop.io/")
	require.Equal(t, []string{
		"https://shop.io/contact",
		"https://shop.io/pricing",
	}, links)
}

func TestTitle(t *testing.T) {
	doc, err := Parse([]byte(`<html><head><title> Shop | Home </title></head><body></body></html>`))
	require.NoError(t, err)
	require.Equal(t, "Shop | Home", Title(doc))
}
