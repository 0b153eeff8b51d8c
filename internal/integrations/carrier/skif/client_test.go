package skif

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
)

func TestClient_CreateAndOrderNum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/order/create", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("X-Api-Key"))

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Crate)

		_, _ = w.Write([]byte(`{"success":true,"number":"SK-9"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 0)
	payload, _ := json.Marshal(CreateRequest{Crate: true})
	resp, err := c.Create(context.Background(), payload)
	require.NoError(t, err)

	num, err := c.OrderNum(resp)
	require.NoError(t, err)
	require.Equal(t, "SK-9", num)
}

func TestClient_Create_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"нет терминала в городе"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 0)
	_, err := c.Create(context.Background(), json.RawMessage(`{}`))
	var apiErr *carrier.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Contains(t, apiErr.Message, "нет терминала")
}

func TestClient_Statuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"status":"Выдано получателю"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 0)
	got, err := c.Statuses(context.Background(), []models.StatusApplication{{OrderID: 5, TkNum: "SK-9"}})
	require.NoError(t, err)
	require.Equal(t, "Выдано получателю", got[0].Status)
}
