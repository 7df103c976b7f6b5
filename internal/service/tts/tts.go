package tts

import "context"

// Synthesizer абстракция TTS. Метод синтезирует речь и возвращает путь
// к локальному аудиофайлу (через кэш), ничего не воспроизводя сам.
// Вызовы независимы и могут выполняться конкурентно.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (path string, err error)
}
