package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/datalake"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/index"
	"github.com/kadirpekel/gutensearch/pkg/logger"
	"github.com/kadirpekel/gutensearch/pkg/search"
)

type apiFixture struct {
	lake *datalake.Lake
	srv  *httptest.Server
}

// newAPIFixture stands up the indexer and searcher APIs over one local
// cluster member and a shared datalake.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dlCfg := config.DatalakeConfig{Path: t.TempDir()}
	dlCfg.SetDefaults()
	lake, err := datalake.New(dlCfg, logger.GetLogger())
	require.NoError(t, err)

	node, err := cluster.NewNode(config.ClusterConfig{
		Members:       "127.0.0.1:7600",
		CurrentNodeIP: "127.0.0.1",
		NodePort:      7600,
	}, logger.GetLogger())
	require.NoError(t, err)

	metadata := cluster.NewMetadataStore(node.Client().Map("books-metadata"))
	postings := cluster.NewPostings(node.Client().MultiMap("inverted-index"))
	ix := index.New(lake, metadata, postings, node.Client().Locks(), 20, logger.GetLogger())

	searchCfg := config.SearchConfig{}
	searchCfg.SetDefaults()
	searcher := search.New(metadata, postings, searchCfg, logger.GetLogger())

	r := chi.NewRouter()
	NewIndexerAPI(ix, logger.GetLogger()).Routes(r)
	NewSearcherAPI(searcher, logger.GetLogger()).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiFixture{lake: lake, srv: srv}
}

func (fx *apiFixture) save(t *testing.T, id int, header, body string) {
	t.Helper()
	_, err := fx.lake.Save(guten.BookID(id), header, body)
	require.NoError(t, err)
}

func TestIndexUpdateEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	fx.save(t, 11, "Title: Alice in Wonderland\nAuthor: Lewis Carroll\n", "down the rabbit hole")

	resp, err := http.Post(fx.srv.URL+"/index/update/11", "", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "updated", body["status"])
	assert.Equal(t, float64(3), body["terms"])

	// Second update is a no-op.
	resp, err = http.Post(fx.srv.URL+"/index/update/11", "", nil)
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_indexed", body["status"])
}

func TestIndexUpdateMissingBook(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Post(fx.srv.URL+"/index/update/404", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIndexRebuildAndStatusEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	fx.save(t, 1, "Title: One\n", "first body")
	fx.save(t, 2, "Title: Two\n", "second body")

	resp, err := http.Post(fx.srv.URL+"/index/rebuild", "", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(2), body["books_indexed"])
	assert.Equal(t, float64(0), body["failed"])

	resp, err = http.Get(fx.srv.URL + "/index/status")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(2), body["books_indexed"])
	assert.NotEmpty(t, body["last_update"])
}

func TestSearchEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	fx.save(t, 11, "Title: Alice in Wonderland\nAuthor: Lewis Carroll\n", "down the rabbit hole")
	fx.save(t, 2701, "Title: Moby Dick\nAuthor: Herman Melville\n", "the whale surfaced")

	resp, err := http.Post(fx.srv.URL+"/index/rebuild", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(fx.srv.URL + "/search?q=whale")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_results"])
	assert.Equal(t, float64(1), body["returned_results"])
	results := body["results"].([]any)
	hit := results[0].(map[string]any)
	assert.Equal(t, float64(2701), hit["bookId"])
	assert.Equal(t, "Moby Dick", hit["title"])

	resp, err = http.Get(fx.srv.URL + "/search?q=rabbit&author=carroll")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["returned_results"])
}

func TestSearchEndpointValidation(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.srv.URL + "/search")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(fx.srv.URL + "/search?q=whale&limit=ten")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(fx.srv.URL + "/search?q=whale&year=MDCCCLI")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBooksAndStatsEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	fx.save(t, 5, "Title: T\n", "alpha beta gamma")

	resp, err := http.Post(fx.srv.URL+"/index/rebuild", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(fx.srv.URL + "/books")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["total_results"])
	assert.Equal(t, float64(1), body["returned_results"])

	resp, err = http.Get(fx.srv.URL + "/stats")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["total_books"])
	assert.Equal(t, float64(3), body["unique_words"])
}

func TestHealthEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.srv.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
