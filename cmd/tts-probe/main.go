package main

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/audiocache"
	"RSSVoiceReader/internal/service/tts"
	"RSSVoiceReader/internal/service/tts/google"
	"RSSVoiceReader/internal/service/tts/player"
	"RSSVoiceReader/internal/service/tts/yandex"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Утилита для проверки синтеза речи: синтезирует фразу выбранным TTS,
// кладёт её в кэш и сразу воспроизводит. Удобно для подбора голоса.
func main() {
	var text string
	flag.StringVar(&text, "text", "Downloading TechCrunch r s s feed.", "текст для синтеза речи")

	// NewConfig регистрирует остальные флаги и делает flag.Parse
	cfg := config.NewConfig()

	service := strings.ToLower(strings.TrimSpace(cfg.TTSService))
	ext := "mp3"
	if service != "google" {
		ext = cfg.YandexTTS.Format
	}
	cache, err := audiocache.New(cfg.CacheDir, ext)
	if err != nil {
		fmt.Println("Не удалось подготовить кэш:", err)
		os.Exit(1)
	}

	var synth tts.Synthesizer
	if service == "google" {
		synth = google.New(cache, cfg.GoogleTTS, nil)
	} else {
		synth = yandex.New(cache, cfg.YandexTTS)
	}

	path, err := synth.Synthesize(context.Background(), text)
	if err != nil {
		fmt.Println("Синтез не удался:", err)
		os.Exit(1)
	}
	fmt.Println("Аудио сохранено в:", path)

	ply := player.New()
	done, err := ply.Play(path)
	if err != nil {
		fmt.Println("Не удалось воспроизвести:", err)
		os.Exit(1)
	}
	if err := <-done; err != nil {
		fmt.Println("Воспроизведение прервано:", err)
		os.Exit(1)
	}
	fmt.Println("Воспроизведение завершено.")
}
