package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/fx-wallet/internal/api/problem"
	"github.com/go-chi/httprate"
)

func limitExceeded(detail string) httprate.Option {
	return httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusTooManyRequests, "rate-limit-exceeded", detail)
	})
}

// PublicRateLimiter limits requests per IP for unauthenticated routes.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		limitExceeded(fmt.Sprintf("Rate limit of %d req/s exceeded for this IP", rps)),
	)
}

// WalletRateLimiter limits authenticated callers by wallet holder id.
func WalletRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return "user:" + userID, nil
			}
			return httprate.KeyByIP(r)
		}),
		limitExceeded(fmt.Sprintf("Rate limit of %d req/s exceeded for this user", rps)),
	)
}
