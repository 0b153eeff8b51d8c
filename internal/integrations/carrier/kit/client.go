// Package kit — интеграция с ТК «КИТ».
package kit

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

const (
	createMethod   = "/1.0/order/create"
	statusMethod   = "/1.0/order/status/get"
	documentMethod = "/1.0/order/document/get"
)

// CreateRequest — заявка в формате КИТ. Собирается филлером.
type CreateRequest struct {
	CityPickup   string `json:"city_pickup_code"`
	CityDelivery string `json:"city_delivery_code"`

	SenderName    string `json:"sender_name"`
	SenderPhone   string `json:"sender_phone"`
	SenderAddress string `json:"sender_address"`
	SenderINN     string `json:"sender_inn,omitempty"`

	ReceiverName     string `json:"receiver_name"`
	ReceiverPhone    string `json:"receiver_phone"`
	ReceiverAddress  string `json:"receiver_address,omitempty"`
	ReceiverTerminal string `json:"receiver_terminal,omitempty"`
	ReceiverINN      string `json:"receiver_inn,omitempty"`
	ReceiverPassport string `json:"receiver_passport,omitempty"`
	// 1 — физлицо, 2 — ИП, 3 — юрлицо
	ReceiverType int `json:"receiver_type"`

	Places        int     `json:"places"`
	Weight        float64 `json:"weight"`
	Volume        float64 `json:"volume"`
	DeclaredValue float64 `json:"declared_value"`
	Insurance     bool    `json:"insurance"`
	HardPacking   bool    `json:"hard_packing"`

	PickupPaidBySender   bool   `json:"pickup_paid_by_sender"`
	DeliveryPaidBySender bool   `json:"delivery_paid_by_sender"`
	Comment              string `json:"comment,omitempty"`
}

type createResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Result  struct {
		SaleNumber string `json:"sale_number"`
	} `json:"result"`
}

type Client struct {
	code  string
	host  string
	token string
	httpc *http.Client
}

func New(host, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		code:  "kit",
		host:  host,
		token: token,
		httpc: &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.WrapTransportErr(c.code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &carrier.APIError{Carrier: c.code, Message: "невалидный токен"}
	}
	if resp.StatusCode/100 != 2 {
		return &carrier.APIError{Carrier: c.code, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode")
}

func (c *Client) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var cr createResponse
	if err := c.do(ctx, http.MethodPost, createMethod, payload, &cr); err != nil {
		return nil, err
	}
	// status=1 — заявка принята
	if cr.Status != 1 {
		msg := cr.Message
		if msg == "" {
			msg = fmt.Sprintf("заявка не создана, status=%d", cr.Status)
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
	if cr.Result.SaleNumber == "" {
		return "", &carrier.APIError{Carrier: c.code, Message: "в ответе нет номера накладной"}
	}
	return cr.Result.SaleNumber, nil
}

// типы документов КИТ: 2 — накладная, 4 — наклейка на груз
var docTypeCodes = map[carrier.DocMode]int{
	carrier.DocInfo:  2,
	carrier.DocCargo: 4,
}

func (c *Client) GetPDF(ctx context.Context, tkNum string, mode carrier.DocMode) ([]byte, error) {
	typeCode, ok := docTypeCodes[mode]
	if !ok {
		return nil, fmt.Errorf("неизвестный тип документа %q", mode)
	}
	reqBody := []map[string]any{{
		"sale_number": tkNum,
		"type_code":   typeCode,
	}}
	var docs []struct {
		Data string `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, documentMethod, reqBody, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 || docs[0].Data == "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: "документ не готов"}
	}
	pdf, err := base64.StdEncoding.DecodeString(docs[0].Data)
	return pdf, errors.Wrap(err, "decode document")
}

func (c *Client) Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error) {
	out := make([]models.StatusApplication, 0, len(apps))
	for _, app := range apps {
		var sr struct {
			Status struct {
				Code string `json:"code"`
				Name string `json:"name"`
			} `json:"status"`
		}
		err := c.do(ctx, http.MethodPost, statusMethod, map[string]string{"cargo_number": app.TkNum}, &sr)
		if err != nil {
			return nil, err
		}
		app.Status = sr.Status.Name
		out = append(out, app)
	}
	return out, nil
}
