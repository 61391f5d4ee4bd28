package engine

// Status — исход шага цикла. Движок ветвится по нему, а не по тексту
// ошибок: Retry уводит на паузу и повтор, Fatal останавливает бота.
type Status int

const (
	StatusOK Status = iota
	StatusRetry
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRetry:
		return "retry"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
