package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    RepoSpec
		wantErr bool
	}{
		{in: "acme/handbook", want: RepoSpec{Owner: "acme", Repo: "handbook"}},
		{in: "acme/handbook/docs/en", want: RepoSpec{Owner: "acme", Repo: "handbook", BasePath: "docs/en"}},
		{in: "/acme/handbook/", want: RepoSpec{Owner: "acme", Repo: "handbook"}},
		{in: "acme", wantErr: true},
		{in: "", wantErr: true},
		{in: "/handbook", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepoSpec(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRepoSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type entry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// newTestFetcher serves a tiny repository: docs/{intro.md, logo.png, guide/setup.md}.
func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/repos/acme/handbook/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []entry{
			{Type: "file", Name: "intro.md", Path: "docs/intro.md"},
			{Type: "file", Name: "logo.png", Path: "docs/logo.png"},
			{Type: "dir", Name: "guide", Path: "docs/guide"},
		})
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/guide", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []entry{{Type: "file", Name: "setup.md", Path: "docs/guide/setup.md"}})
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/guide/setup.md", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"type":         "file",
			"name":         "setup.md",
			"path":         "docs/guide/setup.md",
			"sha":          "blob123",
			"encoding":     "base64",
			"content":      base64.StdEncoding.EncodeToString([]byte("# Setup\n\nRun make.")),
			"download_url": "https://raw.example/setup.md",
		})
	})
	mux.HandleFunc("/repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "docs" {
			http.Error(w, "unexpected path", http.StatusBadRequest)
			return
		}
		writeJSON(w, []map[string]any{{"sha": "0123456789abcdef"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return NewFetcher(&Client{Client: gh}, RepoSpec{Owner: "acme", Repo: "handbook", BasePath: "docs"}, nil)
}

func TestFetcherListDocs(t *testing.T) {
	f := newTestFetcher(t)

	docs, err := f.ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro.md", "guide/setup.md"}, docs)
}

func TestFetcherFetchDoc(t *testing.T) {
	f := newTestFetcher(t)

	doc, err := f.FetchDoc(context.Background(), "guide/setup.md")
	require.NoError(t, err)
	assert.Equal(t, "guide/setup.md", doc.Path)
	assert.Equal(t, "# Setup\n\nRun make.", string(doc.Content))
	assert.Equal(t, "blob123", doc.SHA)
	assert.Equal(t, "https://raw.example/setup.md", doc.URL)
}

func TestFetcherLatestCommit(t *testing.T) {
	f := newTestFetcher(t)

	sha, err := f.GetLatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", sha)
	assert.Equal(t, "acme/handbook", f.Repository())
}
