package i18n

import "net/http"

// Middleware injects a localizer into every request context. The language is
// negotiated from Accept-Language and falls back to the configured default.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := Negotiate(r.Header.Get("Accept-Language"))
		ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
