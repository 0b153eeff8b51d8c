package pek

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
		require.Equal(t, "/v1/cargos/add", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "login", user)
		require.Equal(t, "pass", pass)

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 2, req.PayerArrival)

		_, _ = w.Write([]byte(`{"cargoCode":"PK-100500"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "login", "pass", 0)
	payload, _ := json.Marshal(CreateRequest{PayerArrival: 2, PayerPickup: 1})
	resp, err := c.Create(context.Background(), payload)
	require.NoError(t, err)

	num, err := c.OrderNum(resp)
	require.NoError(t, err)
	require.Equal(t, "PK-100500", num)
}

func TestClient_Create_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"не найден город доставки"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "l", "p", 0)
	_, err := c.Create(context.Background(), json.RawMessage(`{}`))
	var apiErr *carrier.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "pek", apiErr.Carrier)
}

func TestClient_Statuses_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/cargos/status", r.URL.Path)
		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"PK-1", "PK-2"}, req["cargoCodes"])

		_, _ = w.Write([]byte(`{"cargos":[
            {"cargoCode":"PK-1","status":"Груз выдан"},
            {"cargoCode":"PK-2","status":"В пути"}
        ]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "l", "p", 0)
	got, err := c.Statuses(context.Background(), []models.StatusApplication{
		{OrderID: 1, TkNum: "PK-1"},
		{OrderID: 2, TkNum: "PK-2"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Груз выдан", got[0].Status)
	require.Equal(t, int64(1), got[0].OrderID)
}

func TestClient_GetPDF_CargoLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "cargolabel", req["form"])
		_, _ = w.Write([]byte(`{"data":"JVBERi0xLjQ="}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "l", "p", 0)
	pdf, err := c.GetPDF(context.Background(), "PK-1", carrier.DocCargo)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(pdf))
}
