package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client — шлюз отправки SMS покупателям.
type Client struct {
	baseURL string
	login   string
	pass    string
	sender  string
	httpc   *http.Client
}

func New(baseURL, login, pass, sender string) *Client {
	if sender == "" {
		sender = "epool"
	}
	return &Client{
		baseURL: baseURL,
		login:   login,
		pass:    pass,
		sender:  sender,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	ZakazID int64  `json:"idzakaz"`
	OrderID int64  `json:"idmonopolia"`
}

func (c *Client) Send(ctx context.Context, phone, text string, orderID, zakazID int64) error {
	body, err := json.Marshal(sendRequest{
		Phone:   phone,
		Sender:  c.sender,
		Text:    text,
		ZakazID: zakazID,
		OrderID: orderID,
	})
	if err != nil {
		return errors.Wrap(err, "marshal sms request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.login != "" {
		req.SetBasicAuth(c.login, c.pass)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sms gateway http %d", resp.StatusCode)
	}
	return nil
}

// NormalizePhone приводит номер к формату 89XXXXXXXXX.
// Невалидный номер — ошибка, такие SMS не отправляем.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	switch {
	case len(p) == 11 && strings.HasPrefix(p, "89"):
		return p, nil
	case len(p) == 12 && strings.HasPrefix(p, "+79"):
		return "89" + p[3:], nil
	case len(p) == 10 && strings.HasPrefix(p, "9"):
		return "8" + p, nil
	}
	return "", fmt.Errorf("номер %q невалиден", phone)
}
