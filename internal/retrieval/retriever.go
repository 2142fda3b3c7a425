// Package retrieval turns ranked search results into a citation-annotated prompt.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mernjs/rag-pipeline/internal/storage"
)

const (
	// MaxQueryLen caps the query text placed in the prompt, in characters.
	MaxQueryLen = 4000

	NoSources = "No sources available."
	NoContext = "No relevant context found."
)

// ErrNoUserTurn is returned when a conversation has nothing to answer.
var ErrNoUserTurn = errors.New("conversation has no user turn")

// Role identifies the author of a conversational turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Searcher is the read side of the vector store.
type Searcher interface {
	Search(query []float32, k int) []storage.SearchResult
}

// Retriever runs similarity search for an embedded query.
type Retriever struct {
	store Searcher
}

// NewRetriever creates a Retriever over the given store.
func NewRetriever(store Searcher) *Retriever {
	return &Retriever{store: store}
}

// Retrieve returns the k best matching chunks, best first.
func (r *Retriever) Retrieve(ctx context.Context, queryEmbedding []float32, k int) ([]storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.Search(queryEmbedding, k), nil
}

// FormatSources renders one numbered line per result:
// "[1] Title (type) — collection".
func FormatSources(results []storage.SearchResult) string {
	if len(results) == 0 {
		return NoSources
	}

	lines := make([]string, len(results))
	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Title)
		if r.Type != "" {
			fmt.Fprintf(&b, " (%s)", r.Type)
		}
		if r.Collection != "" {
			fmt.Fprintf(&b, " — %s", r.Collection)
		}
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

// FormatContext renders result texts as "[#n] text" blocks separated by blank lines.
func FormatContext(results []storage.SearchResult) string {
	if len(results) == 0 {
		return NoContext
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[#%d] %s", i+1, r.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// TruncateQuery cuts q to MaxQueryLen characters.
func TruncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= MaxQueryLen {
		return q
	}
	return string(runes[:MaxQueryLen])
}

// LatestUserQuery returns the content of the last user turn.
func LatestUserQuery(history []Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content, true
		}
	}
	return "", false
}

// BuildPrompt assembles the messages sent to the generator: a system
// instruction listing the sources, the non-user turns of history in order,
// and the latest user turn augmented with the retrieved context. Earlier
// user turns are not replayed.
func BuildPrompt(history []Message, results []storage.SearchResult) ([]Message, error) {
	query, ok := LatestUserQuery(history)
	if !ok {
		return nil, ErrNoUserTurn
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: systemPrompt(results),
	})

	for _, m := range history {
		if m.Role == RoleUser {
			continue
		}
		messages = append(messages, m)
	}

	messages = append(messages, Message{
		Role:    RoleUser,
		Content: userPrompt(query, results),
	})
	return messages, nil
}

func systemPrompt(results []storage.SearchResult) string {
	return fmt.Sprintf(`You are a helpful assistant answering questions about the user's document library.
Answer only from the provided context. If the context does not contain the answer, say so.
Cite the sources you use inline with their number in square brackets, for example [1] or [2][3].

Sources:
%s`, FormatSources(results))
}

func userPrompt(query string, results []storage.SearchResult) string {
	return fmt.Sprintf(`Question:
%s

Context:
%s

Answer concisely in Markdown. Use bullet points for lists and include [n] citations after the sentences they support.`,
		TruncateQuery(query), FormatContext(results))
}
