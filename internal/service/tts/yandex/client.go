package yandex

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/audiocache"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const endpoint = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"

// Client реализует синтез речи через Yandex SpeechKit и складывает результат в кэш.
type Client struct {
	http     *http.Client
	cache    *audiocache.Cache
	cfg      config.YandexTTSConfig
	endpoint string
}

func New(cache *audiocache.Cache, cfg config.YandexTTSConfig) *Client {
	return &Client{http: http.DefaultClient, cache: cache, cfg: cfg, endpoint: endpoint}
}

// Synthesize выполняет запрос к Yandex TTS и возвращает путь к аудиофайлу.
// Если текст уже синтезировался — отдаём файл из кэша без запроса.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("yandex tts: empty API key (set YC_TTS_API_KEY in .env/ENV or pass via flag)")
	}

	key := audiocache.Key(text)
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	// Значения по умолчанию задаются исключительно в config.Defaults().
	// Здесь используем переданные из конфигурации параметры как есть.
	form := url.Values{}
	form.Set("text", text)
	form.Set("voice", c.cfg.Voice)
	form.Set("format", strings.ToLower(c.cfg.Format))
	form.Set("speed", c.cfg.Speed)
	form.Set("emotion", strings.ToLower(c.cfg.Emotion))
	form.Set("lang", c.cfg.Lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Api-Key "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return "", fmt.Errorf("yandex tts error: status=%d, body=%s", resp.StatusCode, bytes.TrimSpace(b))
	}

	return c.cache.Put(key, resp.Body)
}
