package parsing

import "testing"

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/Contact", "https://example.com/Contact"},
		{"strips default https port", "https://example.com:443/about", "https://example.com/about"},
		{"strips default http port", "http://example.com:80/", "http://example.com/"},
		{"removes trailing slash", "https://example.com/contact/", "https://example.com/contact"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"drops fragment and query", "https://example.com/contact?utm=1#form", "https://example.com/contact"},
		{"defaults scheme", "example.com/contact", "https://example.com/contact"},
		{"bare host gets root slash", "https://example.com", "https://example.com/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeURLEquivalence(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://Example.com/contact/")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeURL("https://example.com:443/contact")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected equivalent URLs to normalize identically: %q vs %q", a, b)
	}
}

func TestTaskParametersValidate(t *testing.T) {
	t.Parallel()

	single := TaskParameters{SingleSite: &SingleSiteParams{URL: "https://example.com"}}
	if err := single.Validate(TaskKindSingleSite); err != nil {
		t.Fatalf("Validate(single) error = %v", err)
	}
	if err := single.Validate(TaskKindBatchParse); err == nil {
		t.Fatal("expected mismatch error for single params on batch kind")
	}
	both := TaskParameters{
		SingleSite: &SingleSiteParams{URL: "https://example.com"},
		Batch:      &BatchParams{Query: "q"},
	}
	if err := both.Validate(TaskKindSingleSite); err == nil {
		t.Fatal("expected error when both arms are set")
	}
}
