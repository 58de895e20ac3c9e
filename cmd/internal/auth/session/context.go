package session

import "context"

type storeCtxKey struct{}

// WithStore returns a copy of ctx carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeCtxKey{}, s)
}

// StoreFromContext returns the Store attached by WithStore.
func StoreFromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeCtxKey{}).(*Store)
	return s, ok && s != nil
}
