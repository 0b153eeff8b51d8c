// Package pdf — склейка накладных и наклеек в один документ для печати.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/pkg/errors"
)

// Merge склеивает документы в порядке следования.
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, errors.New("нечего склеивать")
	}
	if len(docs) == 1 {
		return docs[0], nil
	}

	rss := make([]io.ReadSeeker, 0, len(docs))
	for _, d := range docs {
		rss = append(rss, bytes.NewReader(d))
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rss, &out, false, nil); err != nil {
		return nil, errors.Wrap(err, "merge pdf")
	}
	return out.Bytes(), nil
}

// Текст штампа только из ASCII: встроенный Helvetica кириллицу не несёт,
// «Заказ №» на нём не напечатать.
func stampText(orderID int64) string {
	return fmt.Sprintf("N %d", orderID)
}

// StampOrderID ставит на каждую страницу наклейки номер заказа: кладовщик
// сверяет наклейку с коробкой по нему.
func StampOrderID(doc []byte, orderID int64) ([]byte, error) {
	wm, err := api.TextWatermark(
		stampText(orderID),
		"font:Helvetica, points:20, pos:tc, off:0 -10, fillc:#000000, op:1, rot:0",
		true, false, types.POINTS,
	)
	if err != nil {
		return nil, errors.Wrap(err, "make watermark")
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, nil, wm, nil); err != nil {
		return nil, errors.Wrap(err, "stamp pdf")
	}
	return out.Bytes(), nil
}

// SaveDoc кладёт документ в публичный каталог и возвращает имя файла.
// Имя содержит таймстемп, чтобы повторная печать не перетирала прошлую.
func SaveDoc(publicDir, carrierCode, mode string, doc []byte) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.pdf", carrierCode, mode, time.Now().Format("20060102150405"))
	if err := os.WriteFile(filepath.Join(publicDir, name), doc, 0o644); err != nil {
		return "", errors.Wrap(err, "save pdf")
	}
	return name, nil
}

// WithRetry повторяет выгрузку документа: ТК готовят печатные формы
// асинхронно и первые запросы часто приходят раньше документа.
func WithRetry(tries int, delay time.Duration, fetch func() ([]byte, error)) ([]byte, error) {
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		doc, err := fetch()
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
