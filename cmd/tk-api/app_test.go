package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/config"
)

func TestBuildCarrierClients(t *testing.T) {
	cfg := &config.Config{Carriers: map[string]config.CarrierConfig{
		"pek":  {BaseURL: "https://pek.example", Login: "l", Pass: "p"},
		"cdek": {BaseURL: "https://cdek.example", Login: "acc", Pass: "sec"},
		"skif": {BaseURL: "https://skif.example", Token: "t", Off: true},
	}}

	clients, off := buildCarrierClients(cfg)

	require.Contains(t, clients, "pek")
	require.Contains(t, clients, "cdek")
	require.NotContains(t, clients, "skif")

	// выключенные и несконфигурированные ТК
	require.True(t, off["skif"])
	require.True(t, off["kit"])
	require.False(t, off["pek"])
}
