package dadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// Client — стандартизация адресов через dadata clean API.
type Client struct {
	baseURL string
	token   string
	secret  string
	httpc   *http.Client
}

func New(baseURL, token, secret string) *Client {
	if baseURL == "" {
		baseURL = "https://cleaner.dadata.ru"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		secret:  secret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Clean нормализует один адрес. На мусорный вход dadata отвечает записью
// с пустыми полями — это не ошибка, решает вызывающий по IsEmpty().
func (c *Client) Clean(ctx context.Context, query string) (models.NormalizedAddress, error) {
	var addr models.NormalizedAddress

	body, err := json.Marshal([]string{query})
	if err != nil {
		return addr, errors.Wrap(err, "marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/clean/address", bytes.NewReader(body))
	if err != nil {
		return addr, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("X-Secret", c.secret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return addr, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return addr, fmt.Errorf("dadata http %d", resp.StatusCode)
	}

	var out []models.NormalizedAddress
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return addr, errors.Wrap(err, "decode")
	}
	if len(out) == 0 {
		return addr, errors.New("dadata: пустой ответ")
	}
	return out[0], nil
}
