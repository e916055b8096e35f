package api

import (
	"errors"
	"net/http"

	"github.com/hashicorp-forge/rdocs/internal/server"
	"github.com/hashicorp-forge/rdocs/internal/services"
	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/models"
)

type DocumentsPostResponse struct {
	DocID int64 `json:"doc_id"`
}

type DocumentPutResponse struct {
	Status string `json:"status"`
}

// DocumentsPostHandler creates a document from the JSON object in the request
// body.
func DocumentsPostHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		body, err := decodeDocument(w, r)
		if err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, errorStatus(err), invalidBodyMessage(err))
			return
		}

		id, err := srv.Documents.Create(r.Context(), body)
		if err != nil {
			srv.Logger.Error("error creating document",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, errorStatus(err), "Error creating document")
			return
		}

		respondJSON(w, http.StatusOK, DocumentsPostResponse{DocID: id})
	})
}

// DocumentGetHandler returns the stored body of a document.
func DocumentGetHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		id, err := parseDocumentID(r, false)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logArgs = append(logArgs, "doc_id", id)

		body, err := srv.Documents.Get(r.Context(), id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			respondError(w, http.StatusNotFound, "Document not found")
			return
		case err != nil:
			srv.Logger.Error("error getting document",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, errorStatus(err), "Error getting document")
			return
		}

		respondJSON(w, http.StatusOK, body)
	})
}

// DocumentPutHandler replaces the whole body of an existing document.
func DocumentPutHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		// Zero and negative IDs can never exist, so they fall through to a
		// not found reply.
		id, err := parseDocumentID(r, true)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logArgs = append(logArgs, "doc_id", id)

		body, err := decodeDocument(w, r)
		if err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, errorStatus(err), invalidBodyMessage(err))
			return
		}

		err = srv.Documents.Update(r.Context(), id, body)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			respondError(w, http.StatusNotFound, "Document not found")
			return
		case err != nil:
			srv.Logger.Error("error updating document",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, errorStatus(err), "Error updating document")
			return
		}

		respondJSON(w, http.StatusOK, DocumentPutResponse{Status: "updated"})
	})
}

// DocumentAuditHandler returns the audit history of a document, oldest first.
// A document without history, including one that was never created, has an
// empty history.
func DocumentAuditHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		id, err := parseDocumentID(r, false)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logArgs = append(logArgs, "doc_id", id)

		events, err := srv.Documents.History(r.Context(), id)
		if err != nil {
			srv.Logger.Error("error reading audit history",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError, "Error reading audit history")
			return
		}
		if events == nil {
			events = []models.AuditEvent{}
		}

		respondJSON(w, http.StatusOK, events)
	})
}

// SearchHandler returns the bodies of documents whose title or body contains
// the q parameter.
func SearchHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")

		docs, err := srv.Documents.Search(r.Context(), q)
		if err != nil {
			code := errorStatus(err)
			if code == http.StatusServiceUnavailable {
				respondError(w, code, "Search functionality not available")
				return
			}
			srv.Logger.Error("error searching documents",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
			)
			respondError(w, http.StatusInternalServerError, "Error searching documents")
			return
		}

		bodies := make([]models.Body, 0, len(docs))
		for _, d := range docs {
			bodies = append(bodies, d.Body)
		}
		respondJSON(w, http.StatusOK, bodies)
	})
}

func invalidBodyMessage(err error) string {
	switch {
	case errors.Is(err, errUnsupportedType):
		return errUnsupportedType.Error()
	case errors.Is(err, services.ErrInvalidRequest):
		return "Invalid JSON or empty request"
	default:
		return "Invalid JSON: request body must be an object"
	}
}
