package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/voterloader"
)

type ctxKey string

const voterLoaderKey ctxKey = "voterLoader"

// DataLoaderMiddleware attaches a fresh voter loader to every request context.
func DataLoaderMiddleware(repo repository.VoterRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := voterloader.NewVoterLoader(repo)
			ctx := ContextWithVoterLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ContextWithVoterLoader(ctx context.Context, loader *voterloader.VoterLoader) context.Context {
	return context.WithValue(ctx, voterLoaderKey, loader)
}

// VoterLoaderFromContext retrieves the loader from context
func VoterLoaderFromContext(ctx context.Context) *voterloader.VoterLoader {
	if l, ok := ctx.Value(voterLoaderKey).(*voterloader.VoterLoader); ok {
		return l
	}
	return nil
}
