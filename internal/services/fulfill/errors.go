package fulfill

import "fmt"

// FillerError — заявку невозможно собрать из данных заказа. Всегда
// восстановимая: попадает в ответ по конкретному заказу, батч не роняет.
type FillerError struct {
	Reason string
}

func (e *FillerError) Error() string { return e.Reason }

func fillerErrorf(format string, args ...any) *FillerError {
	return &FillerError{Reason: fmt.Sprintf(format, args...)}
}

// CountTerminalsError — поиск терминала по городу дал ноль или несколько
// совпадений. Количество попадает в текст, менеджер выбирает терминал руками.
type CountTerminalsError struct {
	Count int
}

func (e *CountTerminalsError) Error() string {
	if e.Count == 0 {
		return "В указанном городе 0 терминалов."
	}
	return fmt.Sprintf("В указанном городе %d терминалов. Необходимо указать один из них.", e.Count)
}
