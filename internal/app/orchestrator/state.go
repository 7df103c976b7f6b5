package orchestrator

import (
	"RSSVoiceReader/internal/service/feed"
	"time"
)

// State — текущая фаза цикла чтения. Активна ровно одна;
// переходы происходят только внутри цикла обработки событий.
type State int

const (
	StateIdle State = iota
	StateAnnouncingWelcome
	StateCachingAudio
	StatePlayingHeadline
	StateListeningForCommand
	StatePlayingDescription
	StateAnnouncingFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnnouncingWelcome:
		return "announcing_welcome"
	case StateCachingAudio:
		return "caching_audio"
	case StatePlayingHeadline:
		return "playing_headline"
	case StateListeningForCommand:
		return "listening_for_command"
	case StatePlayingDescription:
		return "playing_description"
	case StateAnnouncingFinished:
		return "announcing_finished"
	default:
		return "unknown"
	}
}

// Status — статус воспроизведения для слоя отображения.
type Status int

const (
	StatusUnknown Status = iota
	StatusWaiting
	StatusPlaying
	StatusPaused
	StatusListening
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusListening:
		return "listening"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Listener — наблюдатель оркестратора (слой отображения). Методы вызываются
// из цикла обработки событий, поэтому должны быть быстрыми и неблокирующими.
type Listener interface {
	OnFeedItems(items []feed.Item)
	OnCurrentItem(item *feed.Item)
	OnStatus(status Status)
	OnError(err error)
}

// NopListener — заглушка наблюдателя.
type NopListener struct{}

func (NopListener) OnFeedItems([]feed.Item) {}
func (NopListener) OnCurrentItem(*feed.Item) {}
func (NopListener) OnStatus(Status)          {}
func (NopListener) OnError(error)            {}

// Timer — минимальная обёртка таймера, чтобы в тестах подменять время.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock создаёт таймеры окна распознавания.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }

// SystemClock — реальное время.
type SystemClock struct{}

func (SystemClock) NewTimer(d time.Duration) Timer { return systemTimer{t: time.NewTimer(d)} }
