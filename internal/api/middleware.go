package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

type ctxKey int

const apiKeyCtxKey ctxKey = iota

// maxRequestBodyBytes bounds every inbound request body (spec.md's
// ambient stack carries the teacher's request-size guard even though it is
// not itself a named spec component).
const maxRequestBodyBytes = 1 << 20 // 1 MiB

// RequestSizeLimit caps the request body every handler reads.
func RequestSizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// BearerAuth authenticates requests using an active ApiKey's Bearer token
// (spec.md §6's REST surface contract). The matched key is attached to the
// request context for handlers that need to know which worker called them.
func BearerAuth(keys store.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, apierrors.NewAuthnError("missing or malformed Authorization header", nil))
				return
			}

			key, err := keys.GetAPIKeyByKey(r.Context(), token)
			if err != nil || !key.IsActive {
				writeError(w, apierrors.NewAuthnError("invalid API key", err))
				return
			}

			_ = keys.IncrementAPIKeyUsage(r.Context(), key.ID)
			ctx := context.WithValue(r.Context(), apiKeyCtxKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// apiKeyFrom extracts the ApiKey attached by BearerAuth, if any.
func apiKeyFrom(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(apiKeyCtxKey).(*models.APIKey)
	return k
}
