package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/index"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/scraper"
)

func newTestServer(t *testing.T) *httptest.Server {
	dir := t.TempDir()
	store := index.NewFileStore(dir, nil)

	urls := catalog.DefaultURLs()
	idx := index.New(9)
	idx.Merge([]internal.Reference{urls.Reference(9, 39025), urls.Reference(9, 39026)}, 3)
	require.NoError(t, store.Save(context.Background(), idx))

	layout := local.NewLayout(dir)
	require.NoError(t, os.MkdirAll(layout.DocumentDir(9), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(layout.DocumentDir(9), "EFTA00039025.pdf"), []byte("%PDF"), 0644))

	s := scraper.New(catalog.Default(urls), store, scraper.WithLayout(layout))
	srv := httptest.NewServer(NewServer(s, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v interface{}) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServer(t *testing.T) {
	srv := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", nil))
	})

	t.Run("list", func(t *testing.T) {
		var body struct {
			Datasets []DatasetInfo `json:"datasets"`
			Count    int           `json:"count"`
		}
		require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/datasets", &body))
		assert.Equal(t, 12, body.Count)
		assert.Equal(t, "2 files indexed (page 3)", body.Datasets[8].Progress)
		assert.Equal(t, "not started", body.Datasets[0].Progress)
	})

	t.Run("dataset", func(t *testing.T) {
		var info DatasetInfo
		require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/datasets/9", &info))
		assert.Equal(t, 2, info.Indexed)
		assert.Equal(t, 1, info.Downloaded)
		assert.Equal(t, 1, info.Missing)
	})

	t.Run("missing", func(t *testing.T) {
		var body struct {
			Missing []internal.Reference `json:"missing"`
		}
		require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/datasets/9/missing", &body))
		require.Len(t, body.Missing, 1)
		assert.Equal(t, "EFTA00039026", body.Missing[0].ID)
	})

	t.Run("unknown dataset", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/datasets/99", nil))
	})

	t.Run("bad dataset", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/datasets/nine", nil))
	})
}
