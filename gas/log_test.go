package gas

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestStructuredLoggingEvents(t *testing.T) {
	logger, logs := newObservedLogger()
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"

	runWorld(t, 2, nil, []Option{WithConfig(cfg), WithLogger(logger)}, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(8, Byte)
		if err != nil {
			return err
		}
		buf := make([]byte, 8)
		if err := rt.Put(ptr.WithUnit(0), buf, 8, Byte); err != nil {
			return err
		}
		return team.Barrier()
	})

	var events []string
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if field.Key == "event" {
				events = append(events, field.String)
			}
		}
	}
	want := map[string]bool{"init": false, "segment_alloc": false}
	for _, ev := range events {
		if _, ok := want[ev]; ok {
			want[ev] = true
		}
	}
	for ev, seen := range want {
		if !seen {
			t.Fatalf("event %q not logged; saw %v", ev, events)
		}
	}
}

func TestLoggingSilentAtWarn(t *testing.T) {
	logger, logs := newObservedLogger()
	// Default level "warn" suppresses the debug stream entirely.
	runWorld(t, 1, nil, []Option{WithLogger(logger)}, func(rt *Runtime) error {
		_, err := rt.TeamAll().Alloc(8, Byte)
		return err
	})
	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no log entries at warn level, got %d", n)
	}
}
