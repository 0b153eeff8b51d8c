package cdek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600}`))
	})
	mux.HandleFunc("/", handler)
	return httptest.NewServer(mux)
}

func TestClient_Create_WaitsForNumber(t *testing.T) {
	var gets int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/orders":
			_, _ = w.Write([]byte(`{"entity":{"uuid":"u-1"},"requests":[{"state":"ACCEPTED"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/orders/u-1":
			// номер появляется со второй попытки
			if atomic.AddInt32(&gets, 1) < 2 {
				_, _ = w.Write([]byte(`{"entity":{}}`))
				return
			}
			_, _ = w.Write([]byte(`{"entity":{"cdek_number":"CD-42"}}`))
		default:
			t.Fatalf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
	})
	defer srv.Close()

	c := New(srv.URL, "acc", "sec", 0)
	resp, err := c.Create(context.Background(), json.RawMessage(`{"tariff_code":136}`))
	require.NoError(t, err)

	num, err := c.OrderNum(resp)
	require.NoError(t, err)
	require.Equal(t, "CD-42", num)
}

func TestClient_Create_Invalid(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entity":{},"requests":[{"state":"INVALID","errors":[{"code":"v2_bad_city","message":"город не найден"}]}]}`))
	})
	defer srv.Close()

	c := New(srv.URL, "acc", "sec", 0)
	_, err := c.Create(context.Background(), json.RawMessage(`{}`))
	var apiErr *carrier.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Contains(t, apiErr.Message, "город не найден")
}

func TestClient_GetPDF(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/print/orders":
			_, _ = w.Write([]byte(`{"entity":{"uuid":"p-1","url":"` + "http://" + r.Host + `/download"}}`))
		case r.URL.Path == "/download":
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			t.Fatalf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
	})
	defer srv.Close()

	c := New(srv.URL, "acc", "sec", 0)
	pdf, err := c.GetPDF(context.Background(), "CD-42", carrier.DocInfo)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(pdf))
}
