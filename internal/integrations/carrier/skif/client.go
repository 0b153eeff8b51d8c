// Package skif — интеграция с ТК «Скиф-Карго».
package skif

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
)

type CreateRequest struct {
	CityFrom string `json:"city_from"`
	CityTo   string `json:"city_to"`

	SenderCompany string `json:"sender_company"`
	SenderPhone   string `json:"sender_phone"`
	SenderAddress string `json:"sender_address"`

	ReceiverName    string `json:"receiver_name"`
	ReceiverPhone   string `json:"receiver_phone"`
	ReceiverAddress string `json:"receiver_address,omitempty"`
	TerminalCode    string `json:"terminal_code,omitempty"`
	ReceiverINN     string `json:"receiver_inn,omitempty"`

	Places        int     `json:"places"`
	Weight        float64 `json:"weight"`
	Volume        float64 `json:"volume"`
	DeclaredValue float64 `json:"declared_value"`
	Insurance     bool    `json:"insurance"`
	Crate         bool    `json:"crate"` // обрешётка

	PayerDelivery string `json:"payer_delivery"` // sender / receiver
	PayerPickup   string `json:"payer_pickup"`
	Comment       string `json:"comment,omitempty"`
}

type createResponse struct {
	Success bool   `json:"success"`
	Number  string `json:"number"`
	Error   string `json:"error,omitempty"`
}

type Client struct {
	code    string
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		code:    "skif",
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.WrapTransportErr(c.code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &carrier.APIError{Carrier: c.code, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode")
}

func (c *Client) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var cr createResponse
	if err := c.do(ctx, "/api/order/create", payload, &cr); err != nil {
		return nil, err
	}
	if !cr.Success {
		msg := cr.Error
		if msg == "" {
			msg = "заявка не создана"
		}
		return nil, &carrier.APIError{Carrier: c.code, Message: msg}
	}
	return json.Marshal(cr)
}

func (c *Client) OrderNum(resp json.RawMessage) (string, error) {
	var cr createResponse
	if err := json.Unmarshal(resp, &cr); err != nil {
		return "", errors.Wrap(err, "decode create response")
	}
	if cr.Number == "" {
		return "", &carrier.APIError{Carrier: c.code, Message: "в ответе нет номера накладной"}
	}
	return cr.Number, nil
}

func (c *Client) GetPDF(ctx context.Context, tkNum string, mode carrier.DocMode) ([]byte, error) {
	var pr struct {
		Success bool   `json:"success"`
		Data    string `json:"data"`
		Error   string `json:"error,omitempty"`
	}
	err := c.do(ctx, "/api/order/document", map[string]string{
		"number": tkNum,
		"type":   string(mode),
	}, &pr)
	if err != nil {
		return nil, err
	}
	if !pr.Success || pr.Data == "" {
		msg := pr.Error
		if msg == "" {
			msg = "документ не готов"
		}
		return nil, &carrier.APIError{Carrier: c.code, Message: msg}
	}
	pdf, err := base64.StdEncoding.DecodeString(pr.Data)
	return pdf, errors.Wrap(err, "decode document")
}

func (c *Client) Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error) {
	out := make([]models.StatusApplication, 0, len(apps))
	for _, app := range apps {
		var sr struct {
			Success bool   `json:"success"`
			Status  string `json:"status"`
		}
		if err := c.do(ctx, "/api/order/status", map[string]string{"number": app.TkNum}, &sr); err != nil {
			return nil, err
		}
		if sr.Success {
			app.Status = sr.Status
		}
		out = append(out, app)
	}
	return out, nil
}
