package yandex

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/recognizer"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultEndpoint = "wss://stt.api.cloud.yandex.net/speech/v1/stt:streaming"

// Client реализует recognizer.Pipeline поверх потокового распознавания
// Yandex SpeechKit (WebSocket). Каждый Activate открывает новую сессию,
// Deactivate её закрывает; канал событий общий на всё время жизни клиента.
type Client struct {
	cfg    config.YandexSTTConfig
	source recognizer.AudioSource

	mu      sync.Mutex
	active  bool
	conn    *websocket.Conn
	cancel  context.CancelFunc
	session sync.WaitGroup

	out chan recognizer.Event
}

// New создаёт клиент без установления соединения.
func New(cfg config.YandexSTTConfig, source recognizer.AudioSource) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("yandex stt: пустой API key (ожидается YC_STT_API_KEY)")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if source == nil {
		source = recognizer.NopSource{}
	}
	return &Client{cfg: cfg, source: source, out: make(chan recognizer.Event, 64)}, nil
}

func (c *Client) Events() <-chan recognizer.Event { return c.out }

// Activate открывает WebSocket и запускает горутины приёма и подачи аудио.
func (c *Client) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return errors.New("yandex stt: уже активирован")
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: false,
	}

	// Параметры, которые ожидает WebSocket API SpeechKit (v1):
	// - lang: язык; sampleRateHertz: частота; topic: домен; format: lpcm
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		cancel()
		return fmt.Errorf("yandex stt: неверный endpoint: %w", err)
	}
	q := u.Query()
	q.Set("lang", c.cfg.Language)
	q.Set("sampleRateHertz", fmt.Sprint(c.cfg.SampleRate))
	if q.Get("topic") == "" {
		q.Set("topic", "general")
	}
	if q.Get("format") == "" {
		q.Set("format", "lpcm")
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Api-Key "+c.cfg.APIKey)

	conn, resp, err := dialer.DialContext(sessionCtx, u.String(), header)
	if err != nil {
		cancel()
		// Улучшим диагностику рукопожатия, если доступен HTTP-ответ.
		if resp != nil {
			return fmt.Errorf("yandex stt: не удалось подключиться к %s: %s (HTTP %d): %w", u.String(), http.StatusText(resp.StatusCode), resp.StatusCode, err)
		}
		return fmt.Errorf("yandex stt: не удалось подключиться к %s: %w", u.String(), err)
	}

	// Минимальная стартовая конфигурация первым текстовым фреймом;
	// сервер игнорирует лишние поля, если берёт параметры из URL.
	start := map[string]any{
		"lang":            c.cfg.Language,
		"format":          "lpcm",
		"sampleRateHertz": c.cfg.SampleRate,
		"topic":           "general",
		"partialResults":  c.cfg.Partials,
	}
	if b, merr := json.Marshal(start); merr == nil {
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}

	c.conn = conn
	c.cancel = cancel
	c.active = true

	c.session.Add(2)
	go c.readLoop(sessionCtx, conn)
	go c.pumpLoop(sessionCtx, conn)
	return nil
}

// Deactivate закрывает сессию. Безопасен при повторном вызове.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	cancel := c.cancel
	c.active = false
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	// Попросим сервер закрыть
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "eof"))
	_ = conn.Close()
	c.session.Wait()
	return nil
}

// readLoop читает сообщения от сервера и публикует события.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.session.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// После Deactivate ошибка чтения ожидаема — не публикуем её
			if ctx.Err() == nil {
				c.safeSend(recognizer.Event{Type: recognizer.EventError, Err: err, At: time.Now()})
			}
			return
		}
		if msgType != websocket.TextMessage {
			// Сервер шлёт текстовые JSON-ответы; бинарные игнорируем.
			continue
		}
		text, final, ok := parseServerMessage(data)
		if !ok {
			continue
		}
		if !final && !c.cfg.Partials {
			continue
		}
		c.safeSend(recognizer.Event{Type: recognizer.EventTranscript, Text: text, At: time.Now()})
	}
}

// pumpLoop подаёт аудио из источника бинарными фреймами.
func (c *Client) pumpLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.session.Done()
	for {
		samples, err := c.source.ReadPCM16(ctx)
		if err != nil {
			return
		}
		if len(samples) == 0 {
			continue
		}
		// little-endian, буфер ровно под 2*len(samples)
		b := make([]byte, 0, 2*len(samples))
		for _, s := range samples {
			b = append(b, byte(s), byte(s>>8))
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
			if ctx.Err() == nil {
				c.safeSend(recognizer.Event{Type: recognizer.EventError, Err: err, At: time.Now()})
			}
			return
		}
	}
}

func (c *Client) safeSend(ev recognizer.Event) {
	select {
	case c.out <- ev:
	default:
		// в случае переполнения — дроп, чтобы не блокировать
	}
}

// parseServerMessage пытается вытащить текст и признак финальности из произвольного JSON.
func parseServerMessage(data []byte) (text string, final bool, ok bool) {
	// Попробуем известные шаблоны. Поддержим flexible-схему.
	// 1) {"result":"text","final":true}
	var s1 struct {
		Result string `json:"result"`
		Final  bool   `json:"final"`
	}
	if json.Unmarshal(data, &s1) == nil && (s1.Result != "" || s1.Final) {
		return s1.Result, s1.Final, true
	}

	// 2) {"alternatives":[{"text":"..."}],"final":true}
	var s2 struct {
		Alternatives []struct {
			Text string `json:"text"`
		} `json:"alternatives"`
		Final bool `json:"final"`
	}
	if json.Unmarshal(data, &s2) == nil && len(s2.Alternatives) > 0 {
		return s2.Alternatives[0].Text, s2.Final, true
	}

	// 3) {"partial":"..."}
	var s3 struct {
		Partial string `json:"partial"`
	}
	if json.Unmarshal(data, &s3) == nil && s3.Partial != "" {
		return s3.Partial, false, true
	}

	// 4) Generic: {"text":"...","is_final":true}
	var s4 struct {
		Text    string `json:"text"`
		IsFinal bool   `json:"is_final"`
		Final   bool   `json:"final"`
	}
	if json.Unmarshal(data, &s4) == nil && (s4.Text != "" || s4.IsFinal || s4.Final) {
		return s4.Text, s4.IsFinal || s4.Final, true
	}

	return "", false, false
}
