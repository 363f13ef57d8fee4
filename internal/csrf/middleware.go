package csrf

import (
	"errors"
	"net/http"
)

// Middleware rejects requests without a valid token in the X-CSRF-Token
// header. onError writes the rejection; it receives ErrInvalidToken,
// ErrTokenExpired or a store failure.
func (m *Manager) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := m.ValidateToken(r.Context(), r.Header.Get(HeaderName))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsRejection reports whether err means the client presented a bad token as
// opposed to the store failing
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired)
}
