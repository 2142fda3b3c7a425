package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mernjs/rag-pipeline/internal/github"
	"github.com/mernjs/rag-pipeline/internal/rag"
)

type fakeSource struct {
	files     map[string]string
	order     []string
	sha       string
	shaErr    error
	fetchErrs map[string]error
}

func (f *fakeSource) Repository() string { return "acme/handbook" }

func (f *fakeSource) ListDocs(context.Context) ([]string, error) {
	return f.order, nil
}

func (f *fakeSource) FetchDoc(_ context.Context, p string) (*github.FetchedDoc, error) {
	if err := f.fetchErrs[p]; err != nil {
		return nil, err
	}
	return &github.FetchedDoc{Path: p, Content: []byte(f.files[p])}, nil
}

func (f *fakeSource) GetLatestCommitSHA(context.Context) (string, error) {
	return f.sha, f.shaErr
}

type fakeIngester struct {
	reqs []rag.FileRequest
	err  error
}

func (f *fakeIngester) IngestFile(_ context.Context, req rag.FileRequest) (rag.IngestResult, error) {
	if f.err != nil {
		return rag.IngestResult{}, f.err
	}
	f.reqs = append(f.reqs, req)
	return rag.IngestResult{DocumentID: req.ID, ChunkCount: 2}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIndexAll(t *testing.T) {
	source := &fakeSource{
		files: map[string]string{
			"intro.md":          "# Intro\n\nWelcome.",
			"policies/leave.md": "# Leave\n\nTwenty days.",
			"broken.md":         "",
		},
		order:     []string{"intro.md", "broken.md", "policies/leave.md"},
		sha:       "0123456789abcdef",
		fetchErrs: map[string]error{"broken.md": errors.New("404 not found")},
	}
	ingester := &fakeIngester{}

	p := NewPipeline(source, ingester, "handbook", quietLogger())
	result, err := p.IndexAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Equal(t, 4, result.TotalChunks)
	assert.Equal(t, "0123456789abcdef", result.CommitSHA)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "broken.md", result.FailedDocs[0].Path)

	require.Len(t, ingester.reqs, 2)
	leave := ingester.reqs[1]
	assert.Equal(t, "leave.md", leave.Filename)
	assert.Equal(t, "handbook", leave.Collection)
	assert.Equal(t, "0123456", leave.Version)
	assert.Equal(t, []string{"acme/handbook"}, leave.Tags)
	assert.Equal(t, DocumentID("acme/handbook", "policies/leave.md"), leave.ID)
}

func TestIndexAllCommitError(t *testing.T) {
	p := NewPipeline(&fakeSource{shaErr: errors.New("rate limited")}, &fakeIngester{}, "c", quietLogger())

	_, err := p.IndexAll(context.Background())
	assert.Error(t, err)
}

func TestIndexAllIngestFailure(t *testing.T) {
	source := &fakeSource{
		files: map[string]string{"a.md": "text"},
		order: []string{"a.md"},
		sha:   "abc",
	}
	p := NewPipeline(source, &fakeIngester{err: errors.New("embedding failed")}, "c", quietLogger())

	result, err := p.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 1)
	assert.Contains(t, result.FailedDocs[0].Reason, "embedding failed")
}

func TestDocumentIDIsStable(t *testing.T) {
	a := DocumentID("acme/handbook", "intro.md")
	assert.Equal(t, a, DocumentID("acme/handbook", "intro.md"))
	assert.NotEqual(t, a, DocumentID("acme/handbook", "other.md"))
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "0123456", ShortSHA("0123456789"))
	assert.Equal(t, "abc", ShortSHA("abc"))
}
