package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	chatservice "github.com/zhouzirui/flowchat/internal/service/chat"
)

type storeKey struct{}

// UISession binds each browser to its own chat store through a cookie holding
// a random UUID. Unknown or malformed cookies get a fresh key.
func UISession(registry *chatservice.Registry, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if cookie, err := r.Cookie(cookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					key = id.String()
				}
			}

			if key == "" {
				key = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    key,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			store := registry.Acquire(key)
			next.ServeHTTP(w, r.WithContext(WithStore(r.Context(), store)))
		})
	}
}

// WithStore returns a context carrying store.
func WithStore(ctx context.Context, store *chatservice.Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// StoreFrom returns the chat store bound to the request.
func StoreFrom(ctx context.Context) (*chatservice.Store, bool) {
	store, ok := ctx.Value(storeKey{}).(*chatservice.Store)
	return store, ok
}
