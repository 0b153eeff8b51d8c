// Package pek — интеграция с ТК «ПЭК» (кабинет, api v1, basic auth).
package pek

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

type Party struct {
	Title     string `json:"title"`
	Person    string `json:"person"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
	Address   string `json:"address,omitempty"`
	Warehouse string `json:"warehouse,omitempty"` // код терминала, взаимоисключим с address
	INN       string `json:"inn,omitempty"`
}

type Cargo struct {
	Places        int     `json:"places"`
	Weight        float64 `json:"weight"`
	Volume        float64 `json:"volume"`
	Length        float64 `json:"length,omitempty"`
	Width         float64 `json:"width,omitempty"`
	Height        float64 `json:"height,omitempty"`
	DeclaredValue float64 `json:"declaredValue"`
	Oversized     bool    `json:"oversized,omitempty"`
}

type CreateRequest struct {
	Sender   Party `json:"sender"`
	Receiver Party `json:"receiver"`
	Cargo    Cargo `json:"cargo"`

	Insurance    bool `json:"insurance"`
	HardPacking  bool `json:"hardPacking"`
	Avia         bool `json:"avia,omitempty"`
	WarmCar      bool `json:"warmCar,omitempty"`
	PayerPickup  int  `json:"payerPickup"`  // 1 — отправитель, 2 — получатель
	PayerArrival int  `json:"payerArrival"` // 1 — отправитель, 2 — получатель

	Comment string `json:"comment,omitempty"`
}

type createResponse struct {
	CargoCode string `json:"cargoCode"`
	Error     string `json:"error,omitempty"`
}

type Client struct {
	code    string
	baseURL string
	login   string
	pass    string
	httpc   *http.Client
}

func New(baseURL, login, pass string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		code:    "pek",
		baseURL: baseURL,
		login:   login,
		pass:    pass,
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
	req.SetBasicAuth(c.login, c.pass)

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
	if err := c.do(ctx, "/v1/cargos/add", payload, &cr); err != nil {
		return nil, err
	}
	if cr.Error != "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: cr.Error}
	}
	return json.Marshal(cr)
}

func (c *Client) OrderNum(resp json.RawMessage) (string, error) {
	var cr createResponse
	if err := json.Unmarshal(resp, &cr); err != nil {
		return "", errors.Wrap(err, "decode create response")
	}
	if cr.CargoCode == "" {
		return "", &carrier.APIError{Carrier: c.code, Message: "в ответе нет номера накладной"}
	}
	return cr.CargoCode, nil
}

func (c *Client) GetPDF(ctx context.Context, tkNum string, mode carrier.DocMode) ([]byte, error) {
	form := "waybill"
	if mode == carrier.DocCargo {
		form = "cargolabel"
	}
	var pr struct {
		Data  string `json:"data"`
		Error string `json:"error,omitempty"`
	}
	err := c.do(ctx, "/v1/printforms/get", map[string]string{
		"cargoCode": tkNum,
		"form":      form,
	}, &pr)
	if err != nil {
		return nil, err
	}
	if pr.Error != "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: pr.Error}
	}
	if pr.Data == "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: "документ не готов"}
	}
	pdf, err := base64.StdEncoding.DecodeString(pr.Data)
	return pdf, errors.Wrap(err, "decode document")
}

// Statuses запрашивает статусы одним батчем: ПЭК принимает список накладных.
func (c *Client) Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error) {
	codes := make([]string, 0, len(apps))
	byNum := make(map[string]models.StatusApplication, len(apps))
	for _, a := range apps {
		codes = append(codes, a.TkNum)
		byNum[a.TkNum] = a
	}

	var sr struct {
		Cargos []struct {
			CargoCode string `json:"cargoCode"`
			Status    string `json:"status"`
		} `json:"cargos"`
	}
	if err := c.do(ctx, "/v1/cargos/status", map[string][]string{"cargoCodes": codes}, &sr); err != nil {
		return nil, err
	}

	out := make([]models.StatusApplication, 0, len(sr.Cargos))
	for _, cg := range sr.Cargos {
		app, ok := byNum[cg.CargoCode]
		if !ok {
			continue
		}
		app.Status = cg.Status
		out = append(out, app)
	}
	return out, nil
}
