package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/modules/factors"
	"github.com/petrakis/factorlab/internal/modules/multifactor"
	"github.com/petrakis/factorlab/internal/modules/multifactor/registry"
)

type stubProvider struct{}

func (p *stubProvider) CloseSeries(isin string, q multifactor.Query) (multifactor.Series, error) {
	growth := map[string]float64{"AAA": 1.03, "BBB": 1.01, "CCC": 1.02}[isin]
	if growth == 0 {
		return multifactor.Series{}, nil
	}
	s := multifactor.Series{}
	price := 100.0
	for i := 1; i <= 10; i++ {
		d := fmt.Sprintf("2024-01-%02d", i)
		if q.Contains(d) {
			s.Dates = append(s.Dates, d)
			s.Values = append(s.Values, price)
		}
		price *= growth
	}
	return s, nil
}

type allowAll struct{}

func (allowAll) Exists(isins []string) (bool, string, error) { return true, "", nil }

func newTestRouter(t *testing.T) (chi.Router, *registry.Service) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "factors.db"),
		Name: "factors",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := registry.NewRepository(db, zerolog.Nop())
	require.NoError(t, err)

	provider := &stubProvider{}
	svc := registry.NewService(repo, provider, factors.NewBuilder(provider, zerolog.Nop()), allowAll{}, nil, 0, zerolog.Nop())

	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	return r, svc
}

func createEngine(t *testing.T, svc *registry.Service, name string) {
	t.Helper()
	_, err := svc.Create(registry.StoredConfig{
		Name:       name,
		Securities: []string{"AAA", "BBB", "CCC"},
		Reference:  "AAA",
		Factors: []factors.Def{
			{Name: "mom2", Kind: factors.KindROC, Period: 2},
		},
	})
	require.NoError(t, err)
}

func doRequest(r chi.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListEngines_EmptyArray(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(r, http.MethodGet, "/multifactor/engines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateEngine(t *testing.T) {
	r, svc := newTestRouter(t)

	body, _ := json.Marshal(registry.StoredConfig{
		Name:       "alpha",
		Securities: []string{"AAA", "BBB", "CCC"},
		Reference:  "AAA",
		Factors:    []factors.Def{{Name: "mom2", Kind: factors.KindROC, Period: 2}},
	})

	rec := doRequest(r, http.MethodPost, "/multifactor/engines", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, svc.Get("alpha"))

	rec = doRequest(r, http.MethodGet, "/multifactor/engines", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var configs []registry.StoredConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &configs))
	require.Len(t, configs, 1)
	assert.Equal(t, "alpha", configs[0].Name)
}

func TestCreateEngine_BadBody(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(r, http.MethodPost, "/multifactor/engines", []byte("{nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFactor_NaNRenderedAsNull(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/factors/AAA", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Dates  []string   `json:"dates"`
		Values []*float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Dates, 10)
	require.Len(t, payload.Values, 10)

	// ROC warm-up region comes back as null, later positions as numbers
	assert.Nil(t, payload.Values[0])
	assert.Nil(t, payload.Values[1])
	assert.NotNil(t, payload.Values[5])
}

func TestGetFactor_UnknownSecurity(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/factors/ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFactor_UnknownEngine(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/nope/factors/AAA", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCross(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/cross/2024-01-05", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var section []multifactor.CrossItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &section))
	require.Len(t, section, 3)

	// Steepest growth has the largest 2-day rate of change
	assert.Equal(t, "AAA", section[0].ISIN)
	assert.Equal(t, "CCC", section[1].ISIN)
	assert.Equal(t, "BBB", section[2].ISIN)
}

func TestGetCross_UnknownDate(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/cross/2030-01-01", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetIC(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/ic", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/multifactor/engines/alpha/ic?ndays=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/multifactor/engines/alpha/ic?ndays=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(r, http.MethodGet, "/multifactor/engines/alpha/ic?ndays=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetICIR(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodGet, "/multifactor/engines/alpha/icir?ir_n=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing window is a client error
	rec = doRequest(r, http.MethodGet, "/multifactor/engines/alpha/icir", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEngine(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodDelete, "/multifactor/engines/alpha/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.Get("alpha"))

	rec = doRequest(r, http.MethodDelete, "/multifactor/engines/alpha/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRebuild(t *testing.T) {
	r, svc := newTestRouter(t)
	createEngine(t, svc, "alpha")

	rec := doRequest(r, http.MethodPost, "/multifactor/engines/alpha/rebuild", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodPost, "/multifactor/engines/nope/rebuild", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
