package yandex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/audiocache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.YandexTTSConfig {
	return config.YandexTTSConfig{
		APIKey:  "test-key",
		Voice:   "jane",
		Format:  "mp3",
		Speed:   "1.0",
		Emotion: "neutral",
		Lang:    "en-US",
	}
}

func TestSynthesizeRequestAndCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Api-Key test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "Some headline", r.Form.Get("text"))
		assert.Equal(t, "jane", r.Form.Get("voice"))
		assert.Equal(t, "mp3", r.Form.Get("format"))
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	defer srv.Close()

	cache, err := audiocache.New(t.TempDir(), "mp3")
	require.NoError(t, err)

	c := New(cache, testConfig())
	c.endpoint = srv.URL

	p, err := c.Synthesize(context.Background(), "Some headline")
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "mp3 bytes", string(data))

	// повтор того же текста — из кэша, без похода в API
	p2, err := c.Synthesize(context.Background(), "Some headline")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, 1, hits)
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	cache, err := audiocache.New(t.TempDir(), "mp3")
	require.NoError(t, err)

	c := New(cache, testConfig())
	c.endpoint = srv.URL

	_, err = c.Synthesize(context.Background(), "Some headline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
	assert.Contains(t, err.Error(), "UNAUTHORIZED")
}

func TestSynthesizeRequiresAPIKey(t *testing.T) {
	cache, err := audiocache.New(t.TempDir(), "mp3")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.APIKey = "   "
	c := New(cache, cfg)

	_, err = c.Synthesize(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"))
}
