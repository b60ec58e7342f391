package httpx

import "context"

type ctxKey string

const (
	// CtxKeyUserID carries the authenticated user's id once session
	// middleware has resolved the cookie.
	CtxKeyUserID ctxKey = "user_id"
)

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, userID)
}

// UserIDFromCtx returns the authenticated user id, if any.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(CtxKeyUserID).(string)
	return userID, ok && userID != ""
}
