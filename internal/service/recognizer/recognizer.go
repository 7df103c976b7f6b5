package recognizer

import (
	"context"
	"time"
)

// EventType описывает типы событий, публикуемых пайплайном распознавания.
type EventType int

const (
	EventTranscript EventType = iota + 1
	EventTimeout
	EventError
)

// Event универсальное событие пайплайна распознавания.
type Event struct {
	Type EventType
	Text string // транскрипт (для EventTranscript)
	Err  error  // ошибка (для EventError)
	At   time.Time
}

// Pipeline — активируемый/деактивируемый пайплайн распознавания голоса.
// Activate открывает сессию и начинает публиковать события в Events();
// Deactivate закрывает сессию, канал событий при этом живёт дальше —
// пайплайн можно активировать повторно.
type Pipeline interface {
	Activate(ctx context.Context) error
	Deactivate() error
	Events() <-chan Event
}

// AudioSource — источник аудио для пайплайна (микрофон или его заменитель).
// ReadPCM16 блокируется до появления очередной порции сэмплов PCM16 mono.
type AudioSource interface {
	ReadPCM16(ctx context.Context) ([]int16, error)
}

// Disabled — выключенный пайплайн: активация проходит, событий не бывает.
// Используется, когда ключ STT не задан — каденцией тогда управляет
// только таймер окна.
type Disabled struct{}

func (Disabled) Activate(context.Context) error { return nil }
func (Disabled) Deactivate() error              { return nil }
func (Disabled) Events() <-chan Event           { return nil }

// NopSource — источник тишины для окружений без микрофона (тесты, headless).
type NopSource struct {
	// Interval между порциями; по умолчанию 100ms
	Interval time.Duration
	// FrameLen размер порции в сэмплах; по умолчанию 1600 (100ms при 16kHz)
	FrameLen int
}

func (s NopSource) ReadPCM16(ctx context.Context) ([]int16, error) {
	iv := s.Interval
	if iv <= 0 {
		iv = 100 * time.Millisecond
	}
	n := s.FrameLen
	if n <= 0 {
		n = 1600
	}
	t := time.NewTimer(iv)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-t.C:
		return make([]int16, n), nil
	}
}
