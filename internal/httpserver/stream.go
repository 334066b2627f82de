package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

// streamGenerate relays provider chunks to the client as a server-sent event
// stream of envelopes. Every envelope carries the running accumulation, not
// just the delta, so a client can resume from the latest snapshot. Exactly
// one terminal done envelope is written per stream; a mid-stream provider
// error aborts with an error event instead.
func (h *Handler) streamGenerate(
	ctx context.Context,
	w http.ResponseWriter,
	dispatch *domain.Dispatch,
	sessionID string,
	prompt string,
) {
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	chunks, err := dispatch.Stream(ctx)
	if err != nil {
		logger.Error("stream failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, userMessage(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The connection is closed by the handler returning, success or not.
	defer flusher.Flush()

	var accumulated strings.Builder

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream chunk error", observability.Error(chunk.Err))
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", chunk.Err.Error())
			return
		}

		if chunk.Delta != "" {
			accumulated.WriteString(chunk.Delta)
			writeEnvelope(w, flusher, domain.StreamEnvelope{
				Delta:       chunk.Delta,
				Accumulated: accumulated.String(),
			})
		}

		if chunk.Done {
			break
		}
	}

	writeEnvelope(w, flusher, domain.StreamEnvelope{
		Accumulated: accumulated.String(),
		Done:        true,
	})

	logger.Info("stream completed",
		observability.Int("chars", accumulated.Len()))

	_ = h.service.SaveExchange(ctx, sessionID, prompt, accumulated.String())
}

func writeEnvelope(w http.ResponseWriter, flusher http.Flusher, envelope domain.StreamEnvelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
