package dadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Clean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/clean/address", r.URL.Path)
		require.Equal(t, "Token tok", r.Header.Get("Authorization"))
		require.Equal(t, "sec", r.Header.Get("X-Secret"))

		var queries []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&queries))
		require.Equal(t, []string{"москва тверская 1"}, queries)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
            "source": "москва тверская 1",
            "result": "г Москва, ул Тверская, д 1",
            "postal_code": "125009",
            "region": "Москва",
            "city": "Москва",
            "city_with_type": "г Москва",
            "street": "Тверская",
            "street_with_type": "ул Тверская",
            "house": "1",
            "fias_level": "8"
        }]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "sec")
	addr, err := c.Clean(context.Background(), "москва тверская 1")
	require.NoError(t, err)
	require.Equal(t, "Москва", addr.City)
	require.Equal(t, "Тверская", addr.Street)
	require.Equal(t, 8, addr.FiasLevel)
	require.False(t, addr.IsEmpty())
	require.False(t, addr.CityOnly())
}

func TestClient_Clean_CityOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"source": "пермь", "result": "г Пермь", "city": "Пермь"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	addr, err := c.Clean(context.Background(), "пермь")
	require.NoError(t, err)
	require.True(t, addr.CityOnly())
	require.Equal(t, "Пермь", addr.CityName())
}

func TestClient_Clean_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad", "bad")
	_, err := c.Clean(context.Background(), "x")
	require.Error(t, err)
}
