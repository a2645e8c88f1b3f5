package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// DefaultStreamTimeout bounds the wait for the next stream event.
const DefaultStreamTimeout = 5 * time.Minute

// StreamState is the terminal state of one stream consumption.
type StreamState string

const (
	// StreamCompleted means a status event reported completion.
	StreamCompleted StreamState = "completed"
	// StreamErrored means a status event reported a run error.
	StreamErrored StreamState = "errored"
	// StreamTimedOut means no event arrived within the budget. This is
	// a distinct condition from a backend-reported error.
	StreamTimedOut StreamState = "timed-out"
	// StreamCancelled means the caller abandoned the stream. The run
	// continues server-side; this is not a failure of the run.
	StreamCancelled StreamState = "cancelled"
)

// StreamResult carries every decoded event in arrival order plus the
// terminal state that stopped the read.
type StreamResult struct {
	State      StreamState
	Events     []map[string]any
	ErrMessage string
}

// ConsumeStream opens the event stream for a running job and folds
// events until a terminal status event, the per-event timeout, or
// caller cancellation. Malformed event payloads are retained as
// {"raw": ...} records rather than dropped. Connection-level failures
// are the only errors returned.
func (e *Executor) ConsumeStream(ctx context.Context, agentRunID string, timeout time.Duration) (*StreamResult, error) {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}

	query := url.Values{"token": {e.session.Token()}}
	resp, err := e.session.StreamRequest(ctx, "/api/agent-run/"+agentRunID+"/stream", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	events := make(chan string, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(events)
		emit := func(payload string) bool {
			select {
			case events <- payload:
				return true
			case <-done:
				return false
			}
		}
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var data []string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case line == "":
				if len(data) > 0 {
					if !emit(strings.Join(data, "\n")) {
						return
					}
					data = nil
				}
			}
		}
		if len(data) > 0 && !emit(strings.Join(data, "\n")) {
			return
		}
		readErr <- scanner.Err()
	}()

	result := &StreamResult{}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			result.State = StreamCancelled
			return result, nil

		case <-timer.C:
			result.State = StreamTimedOut
			result.ErrMessage = (&StreamTimeoutError{After: timeout}).Error()
			return result, nil

		case payload, ok := <-events:
			if !ok {
				// Stream closed without a terminal status event.
				if err := <-readErr; err != nil {
					return result, &NetworkError{Op: "read event stream", Err: err}
				}
				result.State = StreamTimedOut
				result.ErrMessage = "stream closed before a terminal status event"
				return result, nil
			}

			event := decodeStreamEvent(payload)
			result.Events = append(result.Events, event)

			if eventType, _ := event["type"].(string); eventType == "status" {
				switch status, _ := event["status"].(string); status {
				case "completed":
					result.State = StreamCompleted
					return result, nil
				case "error":
					result.State = StreamErrored
					if msg, ok := event["message"].(string); ok {
						result.ErrMessage = msg
					}
					return result, nil
				}
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		}
	}
}

func decodeStreamEvent(payload string) map[string]any {
	var event map[string]any
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event == nil {
		return map[string]any{"raw": payload}
	}
	return event
}
