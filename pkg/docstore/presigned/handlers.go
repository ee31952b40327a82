package presigned

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-document/pkg/docstore"
)

// Download serves the object named by the validated key in the request
// context. Expired blobs are reported as 404 like missing ones.
func Download(store *docstore.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectKey := ObjectKeyFromContext(r.Context())
		if objectKey == "" {
			writeError(w, http.StatusBadRequest, "missing_object_key", "object key is required in URL path")
			return
		}

		blob, err := store.Get(r.Context(), objectKey)
		if err != nil {
			if docstore.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "not_found", "object not found")
				return
			}
			slog.Error("presigned download failed", "key", objectKey, "error", err)
			writeError(w, http.StatusInternalServerError, "download_failed", "failed to read object")
			return
		}

		contentType := blob.ContentType
		if contentType == "" {
			contentType = docstore.DocxContentType
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", path.Base(blob.Key)))
		if _, err := w.Write(blob.Data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
			slog.Warn("presigned download write error", "key", objectKey, "error", err)
		}
	})
}

// Mount registers the signed download route for store on r. The route is
// the signer's URL pattern with {key} replaced by a wildcard.
func Mount(r chi.Router, signer *Signer, store *docstore.Store) {
	r.With(RequireSignature(signer)).Handle(signer.ObjectPath("*"), Download(store))
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}
