package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mernjs/rag-pipeline/internal/storage"
)

var sampleResults = []storage.SearchResult{
	{ChunkID: "a:0", DocumentID: "a", Text: "Refunds take 5 days.", Title: "Refund Policy", Type: "pdf", Collection: "finance"},
	{ChunkID: "b:0", DocumentID: "b", Text: "Support is 24/7.", Title: "Support FAQ"},
}

func TestRetrieve(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Upsert(storage.Document{ID: "x", Title: "X"}, []storage.Chunk{
		{ID: "x:0", Text: "one", Embedding: []float32{1, 0}},
		{ID: "x:1", Text: "two", Embedding: []float32{0, 1}},
	})

	results, err := NewRetriever(store).Retrieve(context.Background(), []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x:1", results[0].ChunkID)
}

func TestRetrieveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRetriever(storage.NewMemoryStore()).Retrieve(ctx, []float32{1}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatSources(t *testing.T) {
	assert.Equal(t, NoSources, FormatSources(nil))

	got := FormatSources(sampleResults)
	assert.Equal(t, "[1] Refund Policy (pdf) — finance\n[2] Support FAQ", got)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, NoContext, FormatContext(nil))

	got := FormatContext(sampleResults)
	assert.Equal(t, "[#1] Refunds take 5 days.\n\n[#2] Support is 24/7.", got)
}

func TestTruncateQuery(t *testing.T) {
	short := "what is the refund window?"
	assert.Equal(t, short, TruncateQuery(short))

	long := strings.Repeat("é", MaxQueryLen+10)
	truncated := TruncateQuery(long)
	assert.Equal(t, MaxQueryLen, len([]rune(truncated)))
}

func TestLatestUserQuery(t *testing.T) {
	_, ok := LatestUserQuery(nil)
	assert.False(t, ok)

	q, ok := LatestUserQuery([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "trailing"},
	})
	assert.True(t, ok)
	assert.Equal(t, "second", q)
}

func TestBuildPrompt(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "How do refunds work?"},
		{Role: RoleAssistant, Content: "They take a few days [1]."},
		{Role: RoleUser, Content: "How many days exactly?"},
	}

	messages, err := BuildPrompt(history, sampleResults)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "[1] Refund Policy (pdf) — finance")
	assert.Contains(t, messages[0].Content, "square brackets")

	assert.Equal(t, history[1], messages[1])

	assert.Equal(t, RoleUser, messages[2].Role)
	assert.Contains(t, messages[2].Content, "How many days exactly?")
	assert.Contains(t, messages[2].Content, "[#1] Refunds take 5 days.")
	assert.NotContains(t, messages[2].Content, "How do refunds work?")
}

func TestBuildPromptWithoutResults(t *testing.T) {
	messages, err := BuildPrompt([]Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, NoSources)
	assert.Contains(t, messages[1].Content, NoContext)
}

func TestBuildPromptNoUserTurn(t *testing.T) {
	_, err := BuildPrompt([]Message{{Role: RoleAssistant, Content: "hello"}}, sampleResults)
	assert.ErrorIs(t, err, ErrNoUserTurn)
}
