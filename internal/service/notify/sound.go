package notify

import (
	ttsplayer "RSSVoiceReader/internal/service/tts/player"
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ChimeNotifier проигрывает короткий звук-подсказку перед открытием окна
// распознавания, чтобы пользователь понимал, что его слушают.
// Пустой путь — нотификатор выключен.
type ChimeNotifier struct {
	logger *zap.SugaredLogger
	path   string
	ply    ttsplayer.Player
}

// NewChimeNotifier создаёт нотификатор поверх общего плеера приложения.
func NewChimeNotifier(logger *zap.SugaredLogger, path string, ply ttsplayer.Player) *ChimeNotifier {
	return &ChimeNotifier{logger: logger, path: strings.TrimSpace(path), ply: ply}
}

// Enabled сообщает, задан ли звуковой файл.
func (n *ChimeNotifier) Enabled() bool { return n.path != "" }

// Play проигрывает звук и дожидается его окончания. Ошибки логируются
// и возвращаются, чтобы вызывающий мог их проигнорировать.
func (n *ChimeNotifier) Play(ctx context.Context) error {
	if !n.Enabled() {
		return nil
	}
	// Проверяем отмену контекста до начала
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
	}

	if _, err := os.Stat(n.path); err != nil {
		if n.logger != nil {
			n.logger.Warnw("Не удалось открыть звуковой файл подсказки", "path", n.path, "error", err)
		}
		return err
	}

	done, err := n.ply.Play(n.path)
	if err != nil {
		if n.logger != nil {
			n.logger.Warnw("Не удалось воспроизвести звуковую подсказку", "path", n.path, "error", err)
		}
		return err
	}
	select {
	case <-ctx.Done():
		n.ply.Stop()
		return context.Cause(ctx)
	case err := <-done:
		return err
	}
}
