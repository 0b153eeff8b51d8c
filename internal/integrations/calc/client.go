package calc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// NeedCalc — какой расчёт требуется: до терминала, до адреса или оба.
type NeedCalc string

const (
	ToTerm NeedCalc = "to_term"
	ToAddr NeedCalc = "to_addr"
	ToBoth NeedCalc = "to_both"
)

type Good struct {
	GID       int64   `json:"gid,omitempty"`
	Amount    int     `json:"amount"`
	Weight    float64 `json:"weight"`
	Volume    float64 `json:"volume"`
	Length    float64 `json:"length,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Oversized bool    `json:"owersize,omitempty"` // историческая опечатка в API калькулятора
}

type Request struct {
	From     string   `json:"from"`
	ToCity   string   `json:"to_city,omitempty"`
	ToKladr  string   `json:"to_kladr,omitempty"`
	Cost     float64  `json:"cost"`
	NeedCalc NeedCalc `json:"need_calc"`
	Goods    []Good   `json:"goods"`
}

type Response struct {
	Price      float64         `json:"price"`
	Days       json.RawMessage `json:"days"`        // int или строка, зависит от ТК
	Calculated string          `json:"calculated"`  // to_term / to_addr
	TariffCode json.RawMessage `json:"tariff_code"` // int или строка
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// TariffCodeString возвращает tariff_code как строку независимо от того,
// числом или строкой его вернул калькулятор.
func (r Response) TariffCodeString() string {
	if len(r.TariffCode) == 0 || string(r.TariffCode) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.TariffCode, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(r.TariffCode, &n); err == nil {
		return fmt.Sprintf("%d", n)
	}
	return string(r.TariffCode)
}

type calcError struct {
	Error json.RawMessage `json:"error"`
}

// Client — внутренний сервис расчёта стоимости доставки.
// Для тестовых заказов ходит на отдельный инстанс.
type Client struct {
	baseURL     string
	testBaseURL string
	httpc       *http.Client
}

func New(baseURL, testBaseURL string) *Client {
	if testBaseURL == "" {
		testBaseURL = baseURL
	}
	return &Client{
		baseURL:     baseURL,
		testBaseURL: testBaseURL,
		// Калькулятор сам держит таймаут 10с на ответ ТК.
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

// CalcTK считает доставку выбранной ТК. tkName — имя ТК в калькуляторе
// (pek, skif, cdek, kit).
func (c *Client) CalcTK(ctx context.Context, tkName string, req Request, test bool) (Response, error) {
	var out Response

	base := c.baseURL
	if test {
		base = c.testBaseURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return out, errors.Wrap(err, "marshal calc request")
	}

	u := fmt.Sprintf("%s/calc/%s/?with_raw=1&show_exception=1", base, tkName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return out, errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return out, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, errors.Wrap(err, "decode")
	}

	// Калькулятор может вернуть 200 с конвертом {"error": ...} внутри.
	var env calcError
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 && string(env.Error) != "null" {
		return out, fmt.Errorf("расчёт доставки: %s", errorText(env.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return out, errors.New("не удалось рассчитать стоимость доставки")
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrap(err, "decode calc response")
	}
	return out, nil
}

// errorText вытаскивает человекочитаемый текст из вложенного конверта
// {"exception": {"error": ...}} либо {"error": ...}.
func errorText(raw json.RawMessage) string {
	var nested struct {
		Exception struct {
			Error string `json:"error"`
		} `json:"exception"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		if nested.Exception.Error != "" {
			return nested.Exception.Error
		}
		if nested.Error != "" {
			return nested.Error
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
