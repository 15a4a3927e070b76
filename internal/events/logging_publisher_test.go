package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Writer: buf, Level: "debug"})
	require.NoError(t, err)
	return log
}

func TestLoggingPublisherWritesFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewLoggingPublisher(newTestLogger(t, buf))

	err := publisher.Publish(context.Background(), Event{
		Type:     StageCompleted,
		RunID:    "run-1",
		Stage:    "ReportChecker",
		Duration: 1500 * time.Millisecond,
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "workflow event", entry["message"])
	require.Equal(t, StageCompleted, entry["event_type"])
	require.Equal(t, "run-1", entry["run_id"])
	require.Equal(t, "ReportChecker", entry["stage"])
	require.Equal(t, "debug", entry["level"])
}

func TestLoggingPublisherErrorLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewLoggingPublisher(newTestLogger(t, buf))

	require.NoError(t, publisher.Publish(context.Background(), Event{Type: StageFailed, Stage: "RubricAdapter", Err: fmt.Errorf("boom")}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "boom", entry["error"])
}

func TestLoggingPublisherInvokesSubscribers(t *testing.T) {
	t.Parallel()

	publisher := NewLoggingPublisher(logger.Nop())

	var typed, wildcard []string
	sub := publisher.Subscribe(RunCompleted, func(_ context.Context, event Event) error {
		typed = append(typed, event.Type)
		return nil
	})
	publisher.Subscribe(All, func(_ context.Context, event Event) error {
		wildcard = append(wildcard, event.Type)
		return fmt.Errorf("handler errors are logged, not returned")
	})

	require.NoError(t, publisher.Publish(context.Background(), Event{Type: RunStarted}))
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: RunCompleted}))

	sub.Unsubscribe()
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: RunCompleted}))

	require.Equal(t, []string{RunCompleted}, typed)
	require.Equal(t, []string{RunStarted, RunCompleted, RunCompleted}, wildcard)
}

func TestLoggingPublisherNilSafe(t *testing.T) {
	t.Parallel()

	var publisher *LoggingPublisher
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: RunStarted}))
	publisher.Subscribe(RunStarted, func(context.Context, Event) error { return nil }).Unsubscribe()
}
