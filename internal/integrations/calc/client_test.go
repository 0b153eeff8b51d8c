package calc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_CalcTK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calc/pek/", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("with_raw"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "msk", req.From)
		require.Equal(t, ToBoth, req.NeedCalc)
		require.Len(t, req.Goods, 1)

		_, _ = w.Write([]byte(`{"price": 350.0, "days": 3, "calculated": "to_addr", "tariff_code": "std"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	resp, err := c.CalcTK(context.Background(), "pek", Request{
		From:     "msk",
		ToCity:   "Пермь",
		Cost:     35000,
		NeedCalc: ToBoth,
		Goods:    []Good{{Amount: 1, Weight: 2.0, Volume: 0.05}},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 350.0, resp.Price)
	require.Equal(t, "std", resp.TariffCodeString())
	require.Equal(t, "to_addr", resp.Calculated)
}

func TestClient_CalcTK_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"exception": {"error": "город не найден"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.CalcTK(context.Background(), "cdek", Request{From: "msk"}, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "город не найден")
}

func TestClient_CalcTK_TestURL(t *testing.T) {
	prod := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("тестовый заказ пришёл на боевой калькулятор")
	}))
	defer prod.Close()
	test := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price": 1.0, "calculated": "to_term", "tariff_code": 7}`))
	}))
	defer test.Close()

	c := New(prod.URL, test.URL)
	resp, err := c.CalcTK(context.Background(), "skif", Request{From: "msk"}, true)
	require.NoError(t, err)
	require.Equal(t, "7", resp.TariffCodeString())
}
