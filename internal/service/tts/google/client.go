package google

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/audiocache"
	"bytes"
	"context"
	"strings"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
)

// Client реализует синтез речи через Google Cloud Text-to-Speech
// и складывает результат в кэш.
type Client struct {
	cache  *audiocache.Cache
	cfg    config.GoogleTTSConfig
	logger *zap.SugaredLogger
}

func New(cache *audiocache.Cache, cfg config.GoogleTTSConfig, logger *zap.SugaredLogger) *Client {
	return &Client{cache: cache, cfg: cfg, logger: logger}
}

// Synthesize выполняет запрос к Google TTS и возвращает путь к аудиофайлу (MP3).
// Повторный текст отдаётся из кэша без запроса.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	key := audiocache.Key(text)
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	// Создаём клиента SDK
	ttsClient, err := gctts.NewClient(ctx)
	if err != nil {
		return "", err
	}
	defer ttsClient.Close()

	input := &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}}

	voice := &ttspb.VoiceSelectionParams{
		LanguageCode: c.cfg.Language,
		Name:         c.cfg.Voice, // поддержка Standard/Wavenet голосов
	}

	// Только MP3
	audio := &ttspb.AudioConfig{
		AudioEncoding: ttspb.AudioEncoding_MP3,
		SpeakingRate:  c.cfg.SpeakingRate,
		Pitch:         c.cfg.Pitch,
		VolumeGainDb:  c.cfg.VolumeGainDb,
	}
	if ep := strings.TrimSpace(c.cfg.EffectsProfileID); ep != "" {
		audio.EffectsProfileId = []string{ep}
	}

	req := &ttspb.SynthesizeSpeechRequest{Input: input, Voice: voice, AudioConfig: audio}
	started := time.Now()
	resp, err := ttsClient.SynthesizeSpeech(ctx, req)
	if err != nil {
		return "", err
	}
	if c.logger != nil {
		c.logger.Infow("Google TTS synthesize completed", "took", time.Since(started).String())
	}

	return c.cache.Put(key, bytes.NewReader(resp.GetAudioContent()))
}
