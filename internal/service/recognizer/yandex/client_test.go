package yandex

import (
	"testing"

	"RSSVoiceReader/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerMessage(t *testing.T) {
	cases := []struct {
		name      string
		data      string
		wantText  string
		wantFinal bool
		wantOK    bool
	}{
		{"result-final", `{"result":"tell me more","final":true}`, "tell me more", true, true},
		{"result-partial", `{"result":"tell me"}`, "tell me", false, true},
		{"alternatives", `{"alternatives":[{"text":"tell me more"},{"text":"tall ma mare"}],"final":true}`, "tell me more", true, true},
		{"partial-field", `{"partial":"tel"}`, "tel", false, true},
		{"generic-is-final", `{"text":"tell me more","is_final":true}`, "tell me more", true, true},
		{"empty-object", `{}`, "", false, false},
		{"garbage", `not json at all`, "", false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			text, final, ok := parseServerMessage([]byte(c.data))
			assert.Equal(t, c.wantOK, ok)
			if !c.wantOK {
				return
			}
			assert.Equal(t, c.wantText, text)
			assert.Equal(t, c.wantFinal, final)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(config.YandexSTTConfig{}, nil)
	require.Error(t, err, "без API key клиент не создаётся")

	c, err := New(config.YandexSTTConfig{APIKey: "key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultEndpoint, c.cfg.Endpoint)
	assert.Equal(t, "en-US", c.cfg.Language)
	assert.Equal(t, 16000, c.cfg.SampleRate)
	assert.NotNil(t, c.source, "вместо nil-источника подставляется тишина")
}

func TestDeactivateIdleIsNoop(t *testing.T) {
	c, err := New(config.YandexSTTConfig{APIKey: "key"}, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Deactivate())
	assert.NoError(t, c.Deactivate())
}
