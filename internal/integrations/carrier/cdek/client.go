// Package cdek — интеграция с СДЭК (api v2, oauth client credentials).
package cdek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
)

type Contact struct {
	Name   string `json:"name"`
	Phones []struct {
		Number string `json:"number"`
	} `json:"phones"`
}

func MakeContact(name, phone string) Contact {
	c := Contact{Name: name}
	c.Phones = append(c.Phones, struct {
		Number string `json:"number"`
	}{Number: phone})
	return c
}

type Location struct {
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
	KladrID string `json:"kladr_code,omitempty"`
}

type Package struct {
	Number string `json:"number"`
	Weight int    `json:"weight"` // граммы
	Length int    `json:"length,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Items  []Item `json:"items"`
}

type Item struct {
	Name    string  `json:"name"`
	WareKey string  `json:"ware_key"`
	Cost    float64 `json:"cost"`
	Weight  int     `json:"weight"`
	Amount  int     `json:"amount"`
}

type CreateRequest struct {
	TariffCode int    `json:"tariff_code"`
	Number     string `json:"number"` // наш номер заказа
	Comment    string `json:"comment,omitempty"`

	Sender    Contact   `json:"sender"`
	Recipient Contact   `json:"recipient"`
	FromLoc   *Location `json:"from_location,omitempty"`
	ToLoc     *Location `json:"to_location,omitempty"`
	// код ПВЗ при самовывозе, взаимоисключим с to_location
	DeliveryPoint string `json:"delivery_point,omitempty"`

	Packages []Package `json:"packages"`
	Services []struct {
		Code string `json:"code"`
	} `json:"services,omitempty"`
}

type createResponse struct {
	Entity struct {
		UUID string `json:"uuid"`
	} `json:"entity"`
	Requests []struct {
		State  string `json:"state"`
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	} `json:"requests"`
}

type Client struct {
	code    string
	baseURL string
	account string
	secret  string
	httpc   *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(baseURL, account, secret string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		code:    "cdek",
		baseURL: baseURL,
		account: account,
		secret:  secret,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// accessToken выдаёт закэшированный oauth-токен, обновляя его за минуту
// до истечения.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.account},
		"client_secret": {c.secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", carrier.WrapTransportErr(c.code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &carrier.APIError{Carrier: c.code, Message: fmt.Sprintf("oauth http %d", resp.StatusCode)}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	c.token = tr.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal")
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.WrapTransportErr(c.code, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return &carrier.APIError{Carrier: c.code, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(raw), 200))}
	}
	if out != nil {
		return errors.Wrap(json.Unmarshal(raw, out), "decode")
	}
	return nil
}

func (c *Client) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var cr createResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", payload, &cr); err != nil {
		return nil, err
	}
	for _, r := range cr.Requests {
		if r.State == "INVALID" && len(r.Errors) > 0 {
			return nil, &carrier.APIError{Carrier: c.code, Message: r.Errors[0].Message}
		}
	}
	if cr.Entity.UUID == "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: "заявка не создана"}
	}

	// СДЭК присваивает накладную асинхронно; дочитываем номер по uuid.
	num, err := c.waitCdekNumber(ctx, cr.Entity.UUID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"uuid": cr.Entity.UUID, "cdek_number": num})
}

func (c *Client) waitCdekNumber(ctx context.Context, uuid string) (string, error) {
	for i := 0; i < 5; i++ {
		var or struct {
			Entity struct {
				CdekNumber string `json:"cdek_number"`
			} `json:"entity"`
		}
		if err := c.do(ctx, http.MethodGet, "/v2/orders/"+uuid, nil, &or); err != nil {
			return "", err
		}
		if or.Entity.CdekNumber != "" {
			return or.Entity.CdekNumber, nil
		}
		select {
		case <-ctx.Done():
			return "", carrier.WrapTransportErr(c.code, ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return "", &carrier.APIError{Carrier: c.code, Message: "СДЭК не присвоил номер накладной"}
}

func (c *Client) OrderNum(resp json.RawMessage) (string, error) {
	var cr struct {
		CdekNumber string `json:"cdek_number"`
	}
	if err := json.Unmarshal(resp, &cr); err != nil {
		return "", errors.Wrap(err, "decode create response")
	}
	if cr.CdekNumber == "" {
		return "", &carrier.APIError{Carrier: c.code, Message: "в ответе нет номера накладной"}
	}
	return cr.CdekNumber, nil
}

func (c *Client) GetPDF(ctx context.Context, tkNum string, mode carrier.DocMode) ([]byte, error) {
	path := "/v2/print/orders"
	if mode == carrier.DocCargo {
		path = "/v2/print/barcodes"
	}

	var pr struct {
		Entity struct {
			UUID string `json:"uuid"`
			URL  string `json:"url"`
		} `json:"entity"`
	}
	err := c.do(ctx, http.MethodPost, path, map[string]any{
		"orders": []map[string]string{{"cdek_number": tkNum}},
	}, &pr)
	if err != nil {
		return nil, err
	}

	// печатная форма готовится асинхронно, опрашиваем до появления ссылки
	formURL := pr.Entity.URL
	for i := 0; formURL == "" && i < 5; i++ {
		select {
		case <-ctx.Done():
			return nil, carrier.WrapTransportErr(c.code, ctx.Err())
		case <-time.After(time.Second):
		}
		var st struct {
			Entity struct {
				URL string `json:"url"`
			} `json:"entity"`
		}
		if err := c.do(ctx, http.MethodGet, path+"/"+pr.Entity.UUID, nil, &st); err != nil {
			return nil, err
		}
		formURL = st.Entity.URL
	}
	if formURL == "" {
		return nil, &carrier.APIError{Carrier: c.code, Message: "печатная форма не готова"}
	}
	return c.download(ctx, formURL)
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, carrier.WrapTransportErr(c.code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &carrier.APIError{Carrier: c.code, Message: fmt.Sprintf("скачивание формы: http %d", resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error) {
	out := make([]models.StatusApplication, 0, len(apps))
	for _, app := range apps {
		var or struct {
			Entity struct {
				Statuses []struct {
					Name string `json:"name"`
				} `json:"statuses"`
			} `json:"entity"`
		}
		if err := c.do(ctx, http.MethodGet, "/v2/orders?cdek_number="+url.QueryEscape(app.TkNum), nil, &or); err != nil {
			return nil, err
		}
		if len(or.Entity.Statuses) > 0 {
			app.Status = or.Entity.Statuses[0].Name
		}
		out = append(out, app)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
