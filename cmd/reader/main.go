package main

import (
	"RSSVoiceReader/internal/app/orchestrator"
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/audiocache"
	"RSSVoiceReader/internal/service/feed"
	"RSSVoiceReader/internal/service/notify"
	"RSSVoiceReader/internal/service/recognizer"
	sttyandex "RSSVoiceReader/internal/service/recognizer/yandex"
	"RSSVoiceReader/internal/service/tts"
	"RSSVoiceReader/internal/service/tts/google"
	"RSSVoiceReader/internal/service/tts/player"
	ttsyandex "RSSVoiceReader/internal/service/tts/yandex"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	sugar.Infow("Starting app",
		"DebugMode", cfg.DebugMode,
		"Feed", cfg.FeedURL,
		"Items", cfg.NumberOfItems,
	)

	// Кэш аудио: расширение файлов зависит от выбранного TTS
	service := strings.ToLower(strings.TrimSpace(cfg.TTSService))
	ext := "mp3"
	if service == "yandex" {
		ext = cfg.YandexTTS.Format
	}
	cache, err := audiocache.New(cfg.CacheDir, ext)
	if err != nil {
		sugar.Errorw("Не удалось подготовить кэш аудио", "error", err)
		return
	}

	// Конкретный клиент TTS
	var synth tts.Synthesizer
	switch service {
	case "google":
		synth = google.New(cache, cfg.GoogleTTS, sugar)
	default: // yandex
		synth = ttsyandex.New(cache, cfg.YandexTTS)
		if service == "" {
			service = "yandex"
		}
	}
	sugar.Infow("TTS selected", "service", service)

	ply := player.New()

	// Пайплайн распознавания: без ключа STT работаем только по таймеру окна
	var recog recognizer.Pipeline
	if strings.TrimSpace(cfg.YandexSTT.APIKey) != "" {
		c, rerr := sttyandex.New(cfg.YandexSTT, recognizer.NopSource{})
		if rerr != nil {
			sugar.Errorw("Не удалось создать клиента STT", "error", rerr)
			return
		}
		recog = c
	} else {
		sugar.Infow("STT отключён: YC_STT_API_KEY не задан, окно закрывается по таймеру")
		recog = recognizer.Disabled{}
	}

	fetcher := feed.New(cfg.NumberOfItems)

	orch := orchestrator.New(cfg, fetcher, synth, ply, recog, sugar)
	orch.SetChime(notify.NewChimeNotifier(sugar, cfg.ListeningChimePath, ply))
	orch.SetListener(&consoleListener{heading: cfg.FeedHeading})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	orch.Load(ctx, cfg.FeedURL)

	// Graceful shutdown on Ctrl+C / SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		orch.Deactivate()
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			sugar.Errorw("Оркестратор завершился с ошибкой", "error", err)
		}
	}
	sugar.Infow("Stopped")
}

// consoleListener — консольное зеркало состояния (вместо экрана приложения).
type consoleListener struct {
	heading string
}

func (l *consoleListener) OnFeedItems(items []feed.Item) {
	fmt.Printf("== %s: %d статей ==\n", l.heading, len(items))
	for i, it := range items {
		fmt.Printf("%d. %s\n", i+1, it.Title)
	}
}

func (l *consoleListener) OnCurrentItem(item *feed.Item) {
	if item == nil {
		return
	}
	fmt.Printf(">> %s\n   %s\n", item.Title, item.Link)
}

func (l *consoleListener) OnStatus(status orchestrator.Status) {
	fmt.Printf("-- status: %s\n", status)
}

func (l *consoleListener) OnError(err error) {
	fmt.Printf("!! %v\n", err)
}
