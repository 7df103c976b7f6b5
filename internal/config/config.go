package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` //Режим дебага

	// Лента
	FeedURL       string `env:"FEED_URL"`        // URL RSS/Atom/JSON ленты
	FeedHeading   string `env:"FEED_HEADING"`    // Название ленты для вывода
	NumberOfItems int    `env:"NUMBER_OF_ITEMS"` // Сколько статей читать и показывать

	// Сценарий чтения
	WelcomeMessage  string        `env:"WELCOME_MESSAGE"`  // Сообщение при старте приложения
	FinishedMessage string        `env:"FINISHED_MESSAGE"` // Сообщение после прочтения всех заголовков
	ActionPhrase    string        `env:"ACTION_PHRASE"`    // Голосовая команда «расскажи подробнее» (без учёта регистра)
	ActionDelay     time.Duration `env:"ACTION_DELAY"`     // Длительность окна распознавания после заголовка

	// Кэш синтезированного аудио
	CacheDir string `env:"CACHE_DIR"` // Папка для кэша аудиофайлов; пусто — подпапка в os.TempDir()

	// Звук-подсказка перед открытием окна распознавания; пусто — не проигрывать
	ListeningChimePath string `env:"LISTENING_CHIME_PATH"`

	// Общий переключатель сервиса TTS и конфиги провайдеров
	TTSService string `env:"TTS_SERVICE"` // yandex|google, по умолчанию yandex
	YandexTTS  YandexTTSConfig
	GoogleTTS  GoogleTTSConfig

	// STT (Yandex SpeechKit Streaming)
	YandexSTT YandexSTTConfig
}

// YandexTTSConfig конфигурация для синтеза речи через Yandex SpeechKit.
type YandexTTSConfig struct {
	APIKey  string `env:"YC_TTS_API_KEY"` // Ключ берём из .env/ENV. Если пуст — при использовании будет ошибка
	Voice   string `env:"YC_TTS_VOICE"`   // Голос, по умолчанию jane
	Format  string `env:"YC_TTS_FORMAT"`  // mp3|wav, по умолчанию mp3
	Speed   string `env:"YC_TTS_SPEED"`   // Скорость синтеза (1.0 по умолчанию в API)
	Emotion string `env:"YC_TTS_EMOTION"` // Эмоциональная окраска: neutral|good|evil
	Lang    string `env:"YC_TTS_LANG"`    // Язык синтеза, напр. en-US
}

// GoogleTTSConfig конфигурация для синтеза речи через Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	// Путь к файлу ключа сервисного аккаунта. Фактически читается из ENV GOOGLE_APPLICATION_CREDENTIALS.
	// Здесь храним дефолт (service-account.json в корне проекта) для удобства.
	CredentialsPath string  `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Language        string  `env:"GOOGLE_TTS_LANGUAGE"`
	Voice           string  `env:"GOOGLE_TTS_VOICE"`
	SpeakingRate    float64 `env:"GOOGLE_TTS_SPEAKING_RATE"`
	Pitch           float64 `env:"GOOGLE_TTS_PITCH"`
	VolumeGainDb    float64 `env:"GOOGLE_TTS_VOLUME_DB"`
	// Эффект профиля устройства воспроизведения, напр. handset-class-device
	EffectsProfileID string `env:"GOOGLE_TTS_EFFECTS_PROFILE_ID"`
}

// YandexSTTConfig конфигурация потокового распознавания речи (WebSocket).
type YandexSTTConfig struct {
	APIKey     string `env:"YC_STT_API_KEY"`       // Ключ берём из .env/ENV
	Endpoint   string `env:"YC_STT_ENDPOINT"`      // Пусто — дефолтный endpoint SpeechKit
	Language   string `env:"YC_STT_LANG"`          // Язык распознавания, напр. en-US
	SampleRate int    `env:"YC_STT_SAMPLE_RATE"`   // Частота дискретизации, по умолчанию 16000
	Partials   bool   `env:"YC_STT_ALLOW_PARTIAL"` // Принимать частичные гипотезы
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:       false,
		FeedURL:         "https://feeds.feedburner.com/TechCrunch/",
		FeedHeading:     "TechCrunch",
		NumberOfItems:   5,
		WelcomeMessage:  "Downloading TechCrunch r s s feed.",
		FinishedMessage: "You're all caught up",
		ActionPhrase:    "Tell me more",
		ActionDelay:     3500 * time.Millisecond,
		CacheDir:        "",
		// По умолчанию используем Yandex TTS
		TTSService: "yandex",
		YandexTTS: YandexTTSConfig{
			APIKey:  "", // ключ берём из .env/ENV, если пусто — будет ошибка при использовании
			Voice:   "jane",
			Format:  "mp3", // поддерживаемые форматы: mp3|wav (проигрывание mp3/wav)
			Speed:   "1.0",
			Emotion: "neutral",
			Lang:    "en-US",
		},
		GoogleTTS: GoogleTTSConfig{
			CredentialsPath:  "service-account.json",
			Language:         "en-US",
			Voice:            "en-US-Standard-C",
			SpeakingRate:     1.0,
			Pitch:            0.0,
			VolumeGainDb:     0.0,
			EffectsProfileID: "handset-class-device",
		},
		YandexSTT: YandexSTTConfig{
			APIKey:     "",
			Endpoint:   "",
			Language:   "en-US",
			SampleRate: 16000,
			Partials:   false,
		},
	}
}

// NewConfig загружает конфигурацию приложения.
func NewConfig() *Config {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	_ = env.Parse(cfg)

	flag.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага для отображения доп инфы")
	// Лента
	flag.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "URL RSS/Atom/JSON ленты")
	flag.StringVar(&cfg.FeedHeading, "feed-heading", cfg.FeedHeading, "название ленты для вывода")
	flag.IntVar(&cfg.NumberOfItems, "number-of-items", cfg.NumberOfItems, "сколько статей читать и показывать")
	// Сценарий чтения
	flag.StringVar(&cfg.WelcomeMessage, "welcome-message", cfg.WelcomeMessage, "сообщение, озвучиваемое при старте")
	flag.StringVar(&cfg.FinishedMessage, "finished-message", cfg.FinishedMessage, "сообщение после прочтения всех заголовков")
	flag.StringVar(&cfg.ActionPhrase, "action-phrase", cfg.ActionPhrase, "голосовая команда для чтения описания статьи")
	flag.DurationVar(&cfg.ActionDelay, "action-delay", cfg.ActionDelay, "окно распознавания после каждого заголовка, напр. 3.5s")
	// Кэш и звуки
	flag.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "папка для кэша синтезированного аудио (пусто — temp)")
	flag.StringVar(&cfg.ListeningChimePath, "listening-chime-path", cfg.ListeningChimePath, "путь к звуку-подсказке перед окном распознавания (mp3 или wav)")
	// Общие/переключатель TTS
	flag.StringVar(&cfg.TTSService, "tts-service", cfg.TTSService, "выбор сервиса TTS: yandex|google")
	// Параметры Yandex TTS
	flag.StringVar(&cfg.YandexTTS.APIKey, "yc-tts-api-key", cfg.YandexTTS.APIKey, "API ключ Yandex SpeechKit TTS (перекрывает ENV)")
	flag.StringVar(&cfg.YandexTTS.Voice, "yc-tts-voice", cfg.YandexTTS.Voice, "голос для синтеза (напр. jane, oksana, john)")
	flag.StringVar(&cfg.YandexTTS.Format, "yc-tts-format", cfg.YandexTTS.Format, "формат аудио (mp3|wav), проигрывание поддерживается для mp3 и wav")
	flag.StringVar(&cfg.YandexTTS.Speed, "yc-tts-speed", cfg.YandexTTS.Speed, "скорость речи (например, 1.0 по умолчанию)")
	flag.StringVar(&cfg.YandexTTS.Emotion, "yc-tts-emotion", cfg.YandexTTS.Emotion, "эмоциональная окраска (neutral|good|evil)")
	flag.StringVar(&cfg.YandexTTS.Lang, "yc-tts-lang", cfg.YandexTTS.Lang, "язык синтеза, напр. en-US")
	// Параметры Google TTS
	flag.StringVar(&cfg.GoogleTTS.CredentialsPath, "google-tts-credentials", cfg.GoogleTTS.CredentialsPath, "путь к service-account.json (также читается из ENV GOOGLE_APPLICATION_CREDENTIALS)")
	flag.StringVar(&cfg.GoogleTTS.Language, "google-tts-language", cfg.GoogleTTS.Language, "язык синтеза, напр. en-US")
	flag.StringVar(&cfg.GoogleTTS.Voice, "google-tts-voice", cfg.GoogleTTS.Voice, "имя голоса, напр. en-US-Standard-C или en-US-Wavenet-D")
	flag.Float64Var(&cfg.GoogleTTS.SpeakingRate, "google-tts-speaking-rate", cfg.GoogleTTS.SpeakingRate, "скорость речи (1.0 по умолчанию)")
	flag.Float64Var(&cfg.GoogleTTS.Pitch, "google-tts-pitch", cfg.GoogleTTS.Pitch, "тон (полутоны), может быть отрицательным")
	flag.Float64Var(&cfg.GoogleTTS.VolumeGainDb, "google-tts-volume-db", cfg.GoogleTTS.VolumeGainDb, "усиление громкости (дБ), допустимо от -96.0 до +16.0")
	flag.StringVar(&cfg.GoogleTTS.EffectsProfileID, "google-tts-effects-profile-id", cfg.GoogleTTS.EffectsProfileID, "EffectsProfileId, напр. handset-class-device")
	// Параметры Yandex STT
	flag.StringVar(&cfg.YandexSTT.APIKey, "yc-stt-api-key", cfg.YandexSTT.APIKey, "API ключ Yandex SpeechKit STT (перекрывает ENV)")
	flag.StringVar(&cfg.YandexSTT.Endpoint, "yc-stt-endpoint", cfg.YandexSTT.Endpoint, "endpoint WebSocket STT (пусто — дефолтный)")
	flag.StringVar(&cfg.YandexSTT.Language, "yc-stt-lang", cfg.YandexSTT.Language, "язык распознавания, напр. en-US")
	flag.IntVar(&cfg.YandexSTT.SampleRate, "yc-stt-sample-rate", cfg.YandexSTT.SampleRate, "частота дискретизации аудио для STT")
	flag.BoolVar(&cfg.YandexSTT.Partials, "yc-stt-allow-partial", cfg.YandexSTT.Partials, "принимать частичные гипотезы распознавания")
	flag.Parse()

	// Валидация и подготовка окружения для Google TTS.
	// Если выбран сервис google, убеждаемся, что задан путь к cred-файлу
	// и он существует. Если ENV пуст, но в конфиге указан путь — устанавливаем ENV.
	if strings.EqualFold(cfg.TTSService, "google") {
		cred := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		if cred == "" {
			if cp := strings.TrimSpace(cfg.GoogleTTS.CredentialsPath); cp != "" {
				_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cp)
				cred = cp
			}
		}
		if cred == "" {
			panic(fmt.Errorf("google tts: переменная окружения GOOGLE_APPLICATION_CREDENTIALS не задана; укажите ENV или флаг -google-tts-credentials"))
		}
		if _, err := os.Stat(cred); err != nil {
			panic(fmt.Errorf("google tts: файл ключа не найден: %s", cred))
		}
	}

	return cfg
}
