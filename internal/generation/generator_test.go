package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mernjs/rag-pipeline/internal/retrieval"
)

func chunkEvent(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"content": content},
			"finish_reason": nil,
		}},
	})
	return "data: " + string(body) + "\n\n"
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *OpenAIGenerator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/v1"),
		option.WithMaxRetries(0),
	)
	return NewOpenAIGenerator(&client, "gpt-test", 0, 0.2)
}

func collect(ch <-chan Delta) (string, error) {
	var b strings.Builder
	var lastErr error
	for d := range ch {
		b.WriteString(d.Text)
		if d.Err != nil {
			lastErr = d.Err
		}
	}
	return b.String(), lastErr
}

var prompt = []retrieval.Message{
	{Role: retrieval.RoleSystem, Content: "system"},
	{Role: retrieval.RoleAssistant, Content: "earlier answer"},
	{Role: retrieval.RoleUser, Content: "question"},
}

func TestStreamDeliversDeltasInOrder(t *testing.T) {
	var gotBody map[string]any
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Refunds ", "take ", "5 days [1]."} {
			fmt.Fprint(w, chunkEvent(part))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	text, err := collect(gen.Stream(context.Background(), prompt))
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 5 days [1].", text)

	assert.Equal(t, "gpt-test", gotBody["model"])
	assert.EqualValues(t, DefaultMaxTokens, gotBody["max_completion_tokens"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	assert.Equal(t, "user", messages[2].(map[string]any)["role"])
}

func TestStreamProviderErrorBecomesDiagnostic(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	})

	text, err := collect(gen.Stream(context.Background(), prompt))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(text, "\n\n[generation error: "))
	assert.True(t, strings.HasSuffix(text, "]"))
}

func TestStreamMidStreamErrorKeepsPartialOutput(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunkEvent("Partial answer"))
		fmt.Fprint(w, `data: {"error":{"message":"overloaded"}}`+"\n\n")
	})

	text, err := collect(gen.Stream(context.Background(), prompt))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(text, "Partial answer\n\n[generation error: "))
	assert.Contains(t, text, "overloaded")
}

func TestStreamCancellationClosesChannel(t *testing.T) {
	release := make(chan struct{})
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunkEvent("first"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch := gen.Stream(ctx, prompt)

	select {
	case d := <-ch:
		assert.Equal(t, "first", d.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no delta received")
	}

	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case d, ok := <-ch:
			if !ok {
				return
			}
			assert.NoError(t, d.Err, "cancellation must not produce a diagnostic")
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestErrorDelta(t *testing.T) {
	d := ErrorDelta(fmt.Errorf("boom"))
	assert.Equal(t, "\n\n[generation error: boom]", d.Text)
	assert.EqualError(t, d.Err, "boom")
}
