package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
)

type staticLister []catalog.Entity

func (l staticLister) Items() []catalog.Entity { return l }

func testEntities() staticLister {
	return staticLister{
		catalog.NewClusterEntity(catalog.ClusterInfo{
			ID:          "ade18e4cbaef91a0bba4f16c37a8fae4",
			ContextName: "ctx-a",
			APIURL:      "https://a.example.com",
		}),
		catalog.NewClusterEntity(catalog.ClusterInfo{
			ID:          "38cf1cbf59d3481b95d9f9c01914e7ef",
			ContextName: "ctx-b",
			APIURL:      "https://b.example.com",
		}).WithLabel(catalog.LabelFile, "~/.kube/config"),
	}
}

func TestEntitiesHandler(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		contexts []string
	}{
		{name: "all", path: "/entities", contexts: []string{"ctx-a", "ctx-b"}},
		{name: "by context", path: "/entities?context=ctx-a", contexts: []string{"ctx-a"}},
		{name: "by file", path: "/entities?file=~/.kube/config", contexts: []string{"ctx-b"}},
		{name: "no match", path: "/entities?context=missing", contexts: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, EntitiesHandler(testEntities()), tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var list EntityList
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
			assert.Equal(t, len(tt.contexts), list.Count)

			contexts := make([]string, 0, len(list.Items))
			for _, e := range list.Items {
				contexts = append(contexts, e.Spec.KubeconfigContext)
				assert.Equal(t, catalog.KindCluster, e.Kind)
			}
			assert.Equal(t, tt.contexts, contexts)
		})
	}
}

func TestEntitiesHandler_EmptyCatalogEncodesEmptyList(t *testing.T) {
	rec := serve(t, EntitiesHandler(staticLister(nil)), "/entities")
	assert.JSONEq(t, `{"count":0,"items":[]}`, rec.Body.String())
}

func TestEntityHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/entities/{uid}", EntityHandler(testEntities()))

	t.Run("found", func(t *testing.T) {
		rec := serve(t, mux, "/entities/38cf1cbf59d3481b95d9f9c01914e7ef")
		require.Equal(t, http.StatusOK, rec.Code)

		var entity catalog.Entity
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&entity))
		assert.Equal(t, "ctx-b", entity.Spec.KubeconfigContext)
		assert.Equal(t, "~/.kube/config", entity.Metadata.Labels[catalog.LabelFile])
	})

	t.Run("not found", func(t *testing.T) {
		rec := serve(t, mux, "/entities/00000000000000000000000000000000")
		require.Equal(t, http.StatusNotFound, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body.Error, "entity not found")
	})
}
