package server

import (
	"net/http"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
)

// EntityLister lists the entities of the catalog.
type EntityLister interface {
	Items() []catalog.Entity
}

// EntityList is the JSON body served by /entities.
type EntityList struct {
	Count int              `json:"count"`
	Items []catalog.Entity `json:"items"`
}

// EntitiesHandler serves the catalog as JSON. The optional "context" and
// "file" query parameters filter by kubeconfig context name and by file
// label.
func EntitiesHandler(lister EntityLister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextName := r.URL.Query().Get("context")
		file := r.URL.Query().Get("file")

		items := make([]catalog.Entity, 0)
		for _, e := range lister.Items() {
			if contextName != "" && e.Spec.KubeconfigContext != contextName {
				continue
			}
			if file != "" && e.Metadata.Labels[catalog.LabelFile] != file {
				continue
			}
			items = append(items, e)
		}

		writeJSON(w, http.StatusOK, EntityList{Count: len(items), Items: items})
	})
}

// ErrorResponse is the JSON body of failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EntityHandler serves the entity whose UID is the "uid" path value. It must
// be registered with a pattern that defines it, such as /entities/{uid}.
func EntityHandler(lister EntityLister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.PathValue("uid")
		for _, e := range lister.Items() {
			if e.Metadata.UID == uid {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "entity not found: " + uid})
	})
}
