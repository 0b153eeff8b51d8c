package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
)

// FakeClient — детерминированная заглушка ТК для тестов: запоминает
// присланные payload'ы и выдаёт предсказуемые номера и документы.
type FakeClient struct {
	Code string

	// CreateErr, если задана, возвращается из Create.
	CreateErr error
	// PDFErr, если задана, возвращается из GetPDF.
	PDFErr error
	// StatusByNum — статус, который вернёт Statuses для накладной.
	StatusByNum map[string]string

	mu      sync.Mutex
	created []json.RawMessage
	nextSeq int
}

func New(code string) *FakeClient {
	return &FakeClient{Code: code, StatusByNum: map[string]string{}}
}

// Created возвращает payload'ы всех успешных Create.
func (f *FakeClient) Created() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]json.RawMessage, len(f.created))
	copy(out, f.created)
	return out
}

func (f *FakeClient) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.mu.Lock()
	f.nextSeq++
	num := fmt.Sprintf("%s-%05d", f.Code, f.nextSeq)
	f.created = append(f.created, payload)
	f.mu.Unlock()
	return json.Marshal(map[string]string{"number": num})
}

func (f *FakeClient) OrderNum(resp json.RawMessage) (string, error) {
	var r struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(resp, &r); err != nil {
		return "", err
	}
	if r.Number == "" {
		return "", &carrier.APIError{Carrier: f.Code, Message: "в ответе нет номера накладной"}
	}
	return r.Number, nil
}

func (f *FakeClient) GetPDF(ctx context.Context, tkNum string, mode carrier.DocMode) ([]byte, error) {
	if f.PDFErr != nil {
		return nil, f.PDFErr
	}
	return []byte("%PDF-1.4 fake " + tkNum + " " + string(mode)), nil
}

func (f *FakeClient) Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error) {
	out := make([]models.StatusApplication, 0, len(apps))
	for _, a := range apps {
		if st, ok := f.StatusByNum[a.TkNum]; ok {
			a.Status = st
		}
		out = append(out, a)
	}
	return out, nil
}
