package quotes

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := setup(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/quotes", h.MountRoutes)
	return r, f
}

func call(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "3")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type viewBody struct {
	ID       string `json:"id"`
	Target   int64  `json:"target"`
	Sum      int64  `json:"sum"`
	Conflict *struct {
		Kind       string `json:"kind"`
		Difference int64  `json:"difference"`
	} `json:"conflict"`
	Glosas []struct {
		Description string `json:"description"`
		Amount      int64  `json:"amount"`
		Manual      bool   `json:"manual"`
		Order       int    `json:"order"`
	} `json:"glosas"`
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) viewBody {
	t.Helper()
	var v viewBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHandlerSessionLifecycle(t *testing.T) {
	router, f := setupRouter(t)

	rr := call(t, router, http.MethodPost, "/quotes/sessions", `{"sale_ids":[2],"glosas":[{"description":"A"},{"description":"B"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	v := decodeView(t, rr)
	assert.Equal(t, int64(100), v.Target)
	base := "/quotes/sessions/" + v.ID

	rr = call(t, router, http.MethodPut, base+"/glosas/1/amount", `{"amount":70}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	v = decodeView(t, rr)
	assert.True(t, v.Glosas[0].Manual)
	assert.Equal(t, int64(30), v.Glosas[1].Amount)

	rr = call(t, router, http.MethodPost, base+"/glosas", `{"description":"C"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	v = decodeView(t, rr)
	require.Len(t, v.Glosas, 3)
	assert.Equal(t, int64(15), v.Glosas[1].Amount)
	assert.Equal(t, int64(15), v.Glosas[2].Amount)

	rr = call(t, router, http.MethodPost, base+"/glosas/3/move", `{"to":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	v = decodeView(t, rr)
	assert.Equal(t, "C", v.Glosas[0].Description)
	assert.Equal(t, 1, v.Glosas[0].Order)

	rr = call(t, router, http.MethodPatch, base+"/glosas/1/description", `{"description":"Cierre"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Cierre", decodeView(t, rr).Glosas[0].Description)

	rr = call(t, router, http.MethodPut, base+"/glosas/2/discount", `{"discount_pct":"10%"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, router, http.MethodDelete, base+"/glosas/2/amount", "")
	require.Equal(t, http.StatusOK, rr.Code)
	v = decodeView(t, rr)
	assert.Equal(t, int64(100), v.Sum)

	rr = call(t, router, http.MethodDelete, base+"/glosas/3", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeView(t, rr).Glosas, 2)

	rr = call(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, router, http.MethodPost, base+"/save", `{"doc_number":"C-9","client_name":"ACME"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var quote Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &quote))
	assert.Equal(t, int64(3), quote.CreatedBy)
	assert.Equal(t, int64(100), quote.Subtotal)
	assert.Len(t, f.repo.quotes, 1)

	rr = call(t, router, http.MethodGet, "/quotes/1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerConflictIsReturnedAndBlocksSave(t *testing.T) {
	router, _ := setupRouter(t)

	rr := call(t, router, http.MethodPost, "/quotes/sessions", `{"sale_ids":[2]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	base := "/quotes/sessions/" + decodeView(t, rr).ID

	rr = call(t, router, http.MethodPut, base+"/glosas/1/amount", `{"amount":90}`)
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeView(t, rr)
	require.NotNil(t, v.Conflict)
	assert.Equal(t, "manual_mismatch", v.Conflict.Kind)
	assert.Equal(t, int64(-10), v.Conflict.Difference)

	rr = call(t, router, http.MethodPost, base+"/save", `{"doc_number":"C-1","client_name":"ACME"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerErrors(t *testing.T) {
	router, _ := setupRouter(t)

	rr := call(t, router, http.MethodPost, "/quotes/sessions", `{"sale_ids":[2]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	base := "/quotes/sessions/" + decodeView(t, rr).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"empty sale ids", http.MethodPost, "/quotes/sessions", `{"sale_ids":[]}`, http.StatusBadRequest},
		{"unknown sale", http.MethodPost, "/quotes/sessions", `{"sale_ids":[404]}`, http.StatusNotFound},
		{"unknown session", http.MethodGet, "/quotes/sessions/8f14e45f-ceea-4e7a-9c1d-2a3b4c5d6e7f", "", http.StatusNotFound},
		{"bad order", http.MethodDelete, base + "/glosas/zero", "", http.StatusBadRequest},
		{"order out of range", http.MethodPut, base + "/glosas/9/amount", `{"amount":1}`, http.StatusBadRequest},
		{"negative amount", http.MethodPut, base + "/glosas/1/amount", `{"amount":-1}`, http.StatusBadRequest},
		{"empty description", http.MethodPost, base + "/glosas", `{"description":""}`, http.StatusBadRequest},
		{"discount above 100", http.MethodPut, base + "/glosas/1/discount", `{"discount_pct":"101"}`, http.StatusBadRequest},
		{"missing doc number", http.MethodPost, base + "/save", `{"client_name":"ACME"}`, http.StatusBadRequest},
		{"bad quote id", http.MethodGet, "/quotes/x", "", http.StatusBadRequest},
		{"unknown quote", http.MethodGet, "/quotes/55", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestHandlerDiscard(t *testing.T) {
	router, _ := setupRouter(t)

	rr := call(t, router, http.MethodPost, "/quotes/sessions", `{"sale_ids":[3]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	base := "/quotes/sessions/" + decodeView(t, rr).ID

	rr = call(t, router, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = call(t, router, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
