package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp-forge/rdocs/internal/services"
	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/search"
)

// maxBodyBytes caps the size of a request body.
const maxBodyBytes = 8 << 20

var (
	errInvalidID       = errors.New("invalid document ID")
	errUnsupportedType = errors.New("Content-Type must be application/json")
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes v as the JSON response body.
func respondJSON(w http.ResponseWriter, code int, v any) {
	data, err := models.MarshalValue(v)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, ErrorResponse{Error: msg})
}

// errorStatus maps an error returned by the service layer to an HTTP status
// code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, models.ErrNotObject),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseDocumentID parses the {id} path value. Zero and negative IDs are
// rejected unless allowNonPositive is set, in which case they are left for
// the store to report as not found.
func parseDocumentID(r *http.Request, allowNonPositive bool) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	if id <= 0 && !allowNonPositive {
		return 0, fmt.Errorf("%w: %d", errInvalidID, id)
	}
	return id, nil
}

// decodeDocument reads a JSON object request body. The body must be
// declared as JSON and must hold at least one field.
func decodeDocument(w http.ResponseWriter, r *http.Request) (models.Body, error) {
	if !isJSON(r.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidRequest, errUnsupportedType)
	}

	body, err := models.DecodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if errors.Is(err, models.ErrNotObject) {
		return nil, err
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty request body", services.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty document", services.ErrInvalidRequest)
	}
	return body, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
