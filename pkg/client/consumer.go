package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

const (
	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 1024 * 1024
)

// Envelope is the wire record received per streaming increment. Accumulated
// is authoritative: consumers replace their current text with it rather than
// concatenating deltas themselves, so replayed envelopes are harmless.
type Envelope struct {
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
	Done        bool   `json:"done"`
}

// ReadStream consumes a server-sent event stream of envelopes and returns
// the final accumulated text. onUpdate, when non-nil, is called with the
// current accumulated text once per parsed envelope. The reader is closed on
// every exit path.
func ReadStream(r io.ReadCloser, logger *zap.Logger, onUpdate func(accumulated string)) (string, error) {
	defer r.Close()

	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	current := ""
	errorEvent := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event:") {
			errorEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:")) == "error"
			continue
		}

		// Anything but a data line (comments, keep-alives, blanks) is skipped.
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		if errorEvent {
			return current, fmt.Errorf("stream aborted by server: %s", payload)
		}

		envelope, err := decodeEnvelope(payload)
		if err != nil {
			// A single bad line never kills the stream.
			logger.Warn("skipping malformed envelope", zap.Error(err))
			continue
		}

		current = envelope.Accumulated
		if onUpdate != nil {
			onUpdate(current)
		}

		if envelope.Done {
			return current, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return current, fmt.Errorf("stream read failed: %w", err)
	}

	return current, errors.New("stream ended without a terminal envelope")
}

// decodeEnvelope parses one envelope payload, attempting a repair pass on
// malformed JSON before giving up.
func decodeEnvelope(payload string) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil {
		return &envelope, nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, fmt.Errorf("unparseable envelope: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
		return nil, fmt.Errorf("unparseable envelope after repair: %w", err)
	}

	return &envelope, nil
}
