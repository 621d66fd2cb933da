package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// newFakeCSE serves count ranked results across paginated requests.
func newFakeCSE(t *testing.T, total int, calls *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, "test-cx", r.URL.Query().Get("cx"))

		start, err := strconv.Atoi(r.URL.Query().Get("start"))
		require.NoError(t, err)
		num, err := strconv.Atoi(r.URL.Query().Get("num"))
		require.NoError(t, err)
		require.LessOrEqual(t, num, 10)
		*calls = append(*calls, start)

		var items []fakeItem
		for i := start; i < start+num && i <= total; i++ {
			items = append(items, fakeItem{
				Title:   fmt.Sprintf("Result %d", i),
				Link:    fmt.Sprintf("https://site-%d.com/page", i),
				Snippet: fmt.Sprintf("Snippet %d", i),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"items": items}))
	}))
}

func newProvider(endpoint string) *Google {
	return New(Config{APIKey: "test-key", CX: "test-cx", Endpoint: endpoint}, zap.NewNop())
}

func TestDiscoverSinglePage(t *testing.T) {
	var calls []int
	ts := newFakeCSE(t, 30, &calls)
	defer ts.Close()

	results, err := newProvider(ts.URL).Discover(context.Background(), "widgets", 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Equal(t, []int{1}, calls)
	require.Equal(t, "https://site-1.com", results[0].Domain)
	require.Equal(t, "Result 1", results[0].Title)
}

func TestDiscoverPaginatesInBlocksOfTen(t *testing.T) {
	var calls []int
	ts := newFakeCSE(t, 100, &calls)
	defer ts.Close()

	results, err := newProvider(ts.URL).Discover(context.Background(), "widgets", 25)
	require.NoError(t, err)
	require.Len(t, results, 25)
	require.Equal(t, []int{1, 11, 21}, calls)
}

func TestDiscoverStopsWhenResultsRunOut(t *testing.T) {
	var calls []int
	ts := newFakeCSE(t, 7, &calls)
	defer ts.Close()

	results, err := newProvider(ts.URL).Discover(context.Background(), "widgets", 50)
	require.NoError(t, err)
	require.Len(t, results, 7)
}

func TestDiscoverDedupesDomainsKeepingRank(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		items := []fakeItem{
			{Title: "First", Link: "https://dup.com/a", Snippet: "s1"},
			{Title: "Other", Link: "https://other.com/", Snippet: "s2"},
			{Title: "Second", Link: "https://dup.com/b", Snippet: "s3"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"items": items}))
	}))
	defer ts.Close()

	results, err := newProvider(ts.URL).Discover(context.Background(), "widgets", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "First", results[0].Title)
	require.Equal(t, "https://dup.com", results[0].Domain)
	require.Equal(t, "Other", results[1].Title)
}

func TestDiscoverAPIErrorIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := newProvider(ts.URL).Discover(context.Background(), "widgets", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestDiscoverRejectsNonPositiveCount(t *testing.T) {
	_, err := newProvider("http://unused.invalid").Discover(context.Background(), "widgets", 0)
	require.Error(t, err)
}
