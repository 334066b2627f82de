package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/httpserver"
)

// fakeDispatcher returns a canned dispatch or error.
type fakeDispatcher struct {
	dispatch *domain.Dispatch
	err      error

	gotReq *domain.GenerationRequest
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req *domain.GenerationRequest) (*domain.Dispatch, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.dispatch, nil
}

// fakeHistory records appended exchanges.
type fakeHistory struct {
	appended []domain.Exchange
	sessions []string
}

func (f *fakeHistory) Append(_ context.Context, sessionID string, exchange domain.Exchange) error {
	f.sessions = append(f.sessions, sessionID)
	f.appended = append(f.appended, exchange)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, _ string, _ int) ([]domain.ChatMessage, error) {
	return nil, nil
}

// passthroughContexts returns the prompt unchanged.
type passthroughContexts struct{}

func (passthroughContexts) Build(_ context.Context, _, prompt string) string {
	return prompt
}

func oneShotDispatch(provider string, result *domain.GenerationResult, err error) *domain.Dispatch {
	return &domain.Dispatch{
		Mode:     domain.ModeOneShot,
		Provider: provider,
		Complete: func(_ context.Context) (*domain.GenerationResult, error) {
			if err != nil {
				return nil, err
			}
			return result, nil
		},
	}
}

func streamingDispatch(provider string, chunks []domain.StreamChunk) *domain.Dispatch {
	return &domain.Dispatch{
		Mode:     domain.ModeStreaming,
		Provider: provider,
		Stream: func(_ context.Context) (<-chan domain.StreamChunk, error) {
			out := make(chan domain.StreamChunk, len(chunks))
			for _, chunk := range chunks {
				out <- chunk
			}
			close(out)
			return out, nil
		},
	}
}

func newHandler(dispatcher domain.Dispatcher, history domain.HistoryStore) *httpserver.Handler {
	service := domain.NewGenerateService(dispatcher, passthroughContexts{}, history, nil)
	return httpserver.NewHandler(service)
}

func postGenerate(t *testing.T, handler *httpserver.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler.HandleGenerate(w, req)
	return w
}

func TestHandleGenerate_OneShot(t *testing.T) {
	t.Run("should return the generated text as JSON", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("openai", &domain.GenerationResult{Text: "hello there"}, nil),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gpt-4o",
			"prompt": "say hello",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp struct {
			Result   string `json:"result"`
			Fallback bool   `json:"fallback"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Equal(t, "hello there", resp.Result)
		require.False(t, resp.Fallback)
	})

	t.Run("should surface the fallback marker", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("gemini-grounded",
				&domain.GenerationResult{Text: "answer", Fallback: true}, nil),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gemini-2.0-flash-grounded",
			"prompt": "what happened today?",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"fallback":true`)
	})

	t.Run("should persist the exchange after delivery", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("openai", &domain.GenerationResult{Text: "pong"}, nil),
		}
		history := &fakeHistory{}
		handler := newHandler(dispatcher, history)

		w := postGenerate(t, handler, map[string]any{
			"model":      "gpt-4o",
			"prompt":     "ping",
			"session_id": "session-1",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, []string{"session-1"}, history.sessions)
		require.Equal(t, []domain.Exchange{{Prompt: "ping", Response: "pong"}}, history.appended)
	})

	t.Run("should skip persistence without a session", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("openai", &domain.GenerationResult{Text: "pong"}, nil),
		}
		history := &fakeHistory{}
		handler := newHandler(dispatcher, history)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gpt-4o",
			"prompt": "ping",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, history.appended)
	})

	t.Run("should return 500 with the pass-through message on provider failure", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("openai", nil, errors.New("generation failed: upstream exploded")),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gpt-4o",
			"prompt": "hello",
		})

		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Contains(t, w.Body.String(), "upstream exploded")
	})

	t.Run("should map no content to 500", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: oneShotDispatch("openai", nil, domain.ErrNoContent),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gpt-4o",
			"prompt": "hello",
		})

		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Contains(t, w.Body.String(), domain.ErrNoContent.Error())
	})
}

func TestHandleGenerate_Validation(t *testing.T) {
	t.Run("should reject an empty prompt with 400", func(t *testing.T) {
		handler := newHandler(&fakeDispatcher{}, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gpt-4o",
			"prompt": "   ",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Equal(t, "Prompt is required", resp.Error)
	})

	t.Run("should map an unknown model to 500 with the fixed message", func(t *testing.T) {
		dispatcher := &fakeDispatcher{err: domain.ErrUnknownModel}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "mystery-model",
			"prompt": "hello",
		})

		require.Equal(t, http.StatusInternalServerError, w.Code)

		var resp struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Equal(t, "Invalid model selected", resp.Error)
	})

	t.Run("should reject malformed bodies with 400", func(t *testing.T) {
		handler := newHandler(&fakeDispatcher{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		handler.HandleGenerate(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "invalid request body")
	})

	t.Run("should reject non-POST methods", func(t *testing.T) {
		handler := newHandler(&fakeDispatcher{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/generate", nil)
		w := httptest.NewRecorder()
		handler.HandleGenerate(w, req)

		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestHandleGenerate_Streaming(t *testing.T) {
	type envelope struct {
		Delta       string `json:"delta"`
		Accumulated string `json:"accumulated"`
		Done        bool   `json:"done"`
	}

	parseEnvelopes := func(t *testing.T, body string) []envelope {
		t.Helper()

		var envelopes []envelope
		for _, line := range strings.Split(body, "\n") {
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e envelope
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			envelopes = append(envelopes, e)
		}
		return envelopes
	}

	t.Run("should stream envelopes with a running accumulation", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: streamingDispatch("gemini", []domain.StreamChunk{
				{Delta: "Hello"},
				{Delta: ", "},
				{Delta: "world"},
				{Done: true},
			}),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gemini-2.0-flash",
			"prompt": "greet",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

		envelopes := parseEnvelopes(t, w.Body.String())
		require.Len(t, envelopes, 4)

		require.Equal(t, "Hello", envelopes[0].Delta)
		require.Equal(t, "Hello", envelopes[0].Accumulated)
		require.Equal(t, "Hello, ", envelopes[1].Accumulated)
		require.Equal(t, "Hello, world", envelopes[2].Accumulated)

		// Exactly one terminal envelope, carrying the full text.
		var doneCount int
		for _, e := range envelopes {
			if e.Done {
				doneCount++
			}
		}
		require.Equal(t, 1, doneCount)
		require.True(t, envelopes[len(envelopes)-1].Done)
		require.Equal(t, "Hello, world", envelopes[len(envelopes)-1].Accumulated)
	})

	t.Run("should keep accumulation monotonic", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: streamingDispatch("gemini", []domain.StreamChunk{
				{Delta: "a"}, {Delta: "b"}, {Delta: "c"}, {Done: true},
			}),
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gemini-2.0-flash",
			"prompt": "abc",
		})

		envelopes := parseEnvelopes(t, w.Body.String())
		for i := 1; i < len(envelopes); i++ {
			require.True(t, strings.HasPrefix(envelopes[i].Accumulated, envelopes[i-1].Accumulated))
		}
	})

	t.Run("should persist the full accumulated text after the stream", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: streamingDispatch("gemini", []domain.StreamChunk{
				{Delta: "part one "},
				{Delta: "part two"},
				{Done: true},
			}),
		}
		history := &fakeHistory{}
		handler := newHandler(dispatcher, history)

		postGenerate(t, handler, map[string]any{
			"model":      "gemini-2.0-flash",
			"prompt":     "go",
			"session_id": "session-1",
		})

		require.Equal(t, []domain.Exchange{{Prompt: "go", Response: "part one part two"}}, history.appended)
	})

	t.Run("should abort with an error event on a mid-stream failure", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: streamingDispatch("gemini", []domain.StreamChunk{
				{Delta: "partial"},
				{Err: errors.New("upstream dropped")},
			}),
		}
		history := &fakeHistory{}
		handler := newHandler(dispatcher, history)

		w := postGenerate(t, handler, map[string]any{
			"model":      "gemini-2.0-flash",
			"prompt":     "go",
			"session_id": "session-1",
		})

		body := w.Body.String()
		require.Contains(t, body, "event: error\ndata: upstream dropped\n\n")

		// No terminal envelope and no persistence after an abort.
		for _, e := range parseEnvelopes(t, body) {
			require.False(t, e.Done)
		}
		require.Empty(t, history.appended)
	})

	t.Run("should return 500 when the stream cannot start", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			dispatch: &domain.Dispatch{
				Mode:     domain.ModeStreaming,
				Provider: "gemini",
				Stream: func(_ context.Context) (<-chan domain.StreamChunk, error) {
					return nil, errors.New("generation failed: connect refused")
				},
			},
		}
		handler := newHandler(dispatcher, nil)

		w := postGenerate(t, handler, map[string]any{
			"model":  "gemini-2.0-flash",
			"prompt": "go",
		})

		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Contains(t, w.Body.String(), "connect refused")
	})
}

func TestHandleHealth(t *testing.T) {
	handler := newHandler(&fakeDispatcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}
