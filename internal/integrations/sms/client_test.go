package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send", r.URL.Path)
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "89001112233", req.Phone)
		require.Equal(t, "epool", req.Sender)
		require.Equal(t, int64(555), req.OrderID)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", "")
	err := c.Send(context.Background(), "89001112233", "Ваш заказ 555 передан в ПЭК", 555, 777)
	require.NoError(t, err)
}

func TestClient_Send_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "smsuser", login)
		require.Equal(t, "smspass", pass)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "smsuser", "smspass", "")
	require.NoError(t, c.Send(context.Background(), "89001112233", "x", 1, 1))
}

func TestClient_Send_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", "")
	require.Error(t, c.Send(context.Background(), "89001112233", "x", 1, 1))
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"89001112233", "89001112233", true},
		{"+79001112233", "89001112233", true},
		{"9001112233", "89001112233", true},
		{"84951112233", "", false},
		{"123", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in)
		if c.ok {
			require.NoError(t, err, c.in)
			require.Equal(t, c.want, got)
		} else {
			require.Error(t, err, c.in)
		}
	}
}
