package gas

import (
	"fmt"
	"strings"
)

// Logger provides printf-style debug logging hooks for the runtime.
// *zap.SugaredLogger satisfies both Logger and StructuredLogger.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging
// backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

func (rt *Runtime) logEvent(event string, fields ...logField) {
	if rt == nil || !rt.cfg.debugEnabled() {
		return
	}
	if rt.structuredLogger != nil {
		kv := make([]any, 0, len(fields)*2+2)
		kv = append(kv, "event", event)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		rt.structuredLogger.Debugw("pgas runtime", kv...)
		return
	}
	if rt.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	rt.logger.Debugf("runtime %s", b.String())
}
