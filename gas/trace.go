package gas

// TraceAttribute is a key/value attached to spans or span events.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans wrapping runtime phases such as team creation
// and collective allocation.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

func (rt *Runtime) startSpan(name string, attrs ...TraceAttribute) Span {
	if rt == nil || rt.tracer == nil {
		return nil
	}
	return rt.tracer.StartSpan(name, attrs...)
}

func spanEnd(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}
