package fulfill

import (
	"context"
	"encoding/json"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
)

// Application — одна заявка в ТК. Load делает её идемпотентной: заранее
// сохранённый ответ ТК переиспользуется вместо повторной отправки.
type Application struct {
	client carrier.Client
	resp   json.RawMessage
}

func NewApplication(client carrier.Client) *Application {
	return &Application{client: client}
}

func (a *Application) Load(resp json.RawMessage) {
	a.resp = resp
}

func (a *Application) IsLoaded() bool {
	return len(a.resp) > 0
}

func (a *Application) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	resp, err := a.client.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	a.resp = resp
	return resp, nil
}

func (a *Application) OrderNum() (string, error) {
	return a.client.OrderNum(a.resp)
}

func (a *Application) GetPDF(ctx context.Context, mode carrier.DocMode) ([]byte, error) {
	num, err := a.OrderNum()
	if err != nil {
		return nil, err
	}
	return a.client.GetPDF(ctx, num, mode)
}
