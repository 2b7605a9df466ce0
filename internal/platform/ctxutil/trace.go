package ctxutil

import "context"

type traceDataKey struct{}

// TraceData correlates log lines of one request, and of the quest run it
// started, with the caller's trace.
type TraceData struct {
	TraceID   string
	RequestID string
	RunID     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// WithRunID returns a context whose trace data also names runID. The
// caller's TraceData is copied, not mutated.
func WithRunID(ctx context.Context, runID string) context.Context {
	td := TraceData{RunID: runID}
	if cur := GetTraceData(ctx); cur != nil {
		td.TraceID, td.RequestID = cur.TraceID, cur.RequestID
	}
	return WithTraceData(ctx, &td)
}

// LogFields flattens trace data into logger key/value pairs, skipping
// empty values.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var out []interface{}
	for _, kv := range [][2]string{{"trace_id", td.TraceID}, {"request_id", td.RequestID}, {"run_id", td.RunID}} {
		if kv[1] != "" {
			out = append(out, kv[0], kv[1])
		}
	}
	return out
}
