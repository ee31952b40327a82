package presigned

import (
	"context"
	"log/slog"
	"net/http"
)

type objectKeyCtx struct{}

// RequireSignature rejects requests whose signature does not validate and
// passes the object key named by the path on to next
func RequireSignature(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := signer.ValidateRequest(r); err != nil {
				status, code := StatusOf(err)
				if status >= http.StatusInternalServerError {
					slog.Warn("signed download refused", "path", r.URL.Path, "error", err)
				}
				writeError(w, status, code, err.Error())
				return
			}

			key, err := signer.ExtractObjectKey(r.URL.Path)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_path", "invalid download URL")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), objectKeyCtx{}, key)))
		})
	}
}

// ObjectKeyFromContext returns the key set by RequireSignature, or ""
func ObjectKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(objectKeyCtx{}).(string)
	return key
}
