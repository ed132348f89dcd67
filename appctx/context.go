package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyBusinessId = ContextKey("BusinessId")
	ContextKeyUsername   = ContextKey("Username")
	ContextKeyUserId     = ContextKey("UserId")
	ContextKeyUserName   = ContextKey("UserName")

	// ContextKeyLocationId is the location the acting user is signed into.
	// The workflow engine uses it to decide which side of a transfer the
	// caller is acting for.
	ContextKeyLocationId = ContextKey("LocationId")

	// ContextKeyIsAdmin is true for back-office admins. Admins may cancel
	// transfers regardless of location.
	ContextKeyIsAdmin = ContextKey("IsAdmin")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
