package ctxutil

import "context"

type requestDataKey struct{}

// RequestData describes the caller of an API request. Subject is empty for
// anonymous callers.
type RequestData struct {
	Subject string
	Role    string
	Email   string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Subject returns the authenticated subject or "".
func Subject(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.Subject
	}
	return ""
}
