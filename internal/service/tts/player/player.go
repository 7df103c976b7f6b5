package player

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// ErrStopped отдаётся в канал завершения, если воспроизведение прервано Stop().
var ErrStopped = errors.New("player: playback stopped")

// Player воспроизводит один аудиофайл за раз. Play неблокирующий:
// завершение приходит в возвращённый канал (nil — доиграл до конца).
// Повторный Play молча останавливает предыдущий поток.
type Player interface {
	Play(path string) (<-chan error, error)
	Pause()
	Resume()
	Stop()
}

// Default реализует Player поверх beep/speaker, поддерживает mp3 и wav.
type Default struct {
	volumeDB float64

	mu      sync.Mutex
	current *playback
}

// playback — одно активное воспроизведение.
type playback struct {
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	done     chan error
	once     sync.Once
}

// finish доставляет итог ровно один раз и закрывает декодер.
func (p *playback) finish(err error) {
	p.once.Do(func() {
		_ = p.streamer.Close()
		p.done <- err
	})
}

// New создаёт плеер без изменения громкости (0 dB).
func New() *Default { return &Default{volumeDB: 0} }

// NewWithVolume создаёт плеер с предустановленной громкостью в dB (отрицательные — тише).
func NewWithVolume(db float64) *Default { return &Default{volumeDB: db} }

func (d *Default) Play(path string) (<-chan error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "wav":
		streamer, format, err = wav.Decode(f)
	case "mp3", "":
		streamer, format, err = mp3.Decode(f)
	default:
		_ = f.Close()
		return nil, errors.New("unsupported format for direct playback; use mp3 or wav")
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		_ = streamer.Close()
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Предыдущий поток останавливаем молча: играет всегда не больше одного
	if d.current != nil {
		d.stopLocked(d.current)
	}

	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   d.volumeDB,
		Silent:   false,
	}
	pb := &playback{
		streamer: streamer,
		done:     make(chan error, 1),
	}
	pb.ctrl = &beep.Ctrl{Streamer: beep.Seq(vol, beep.Callback(func() {
		pb.finish(nil)
	})), Paused: false}
	d.current = pb

	speaker.Play(pb.ctrl)
	return pb.done, nil
}

// Pause приостанавливает текущий поток, позиция сохраняется.
func (d *Default) Pause() { d.setPaused(true) }

// Resume продолжает приостановленный поток.
func (d *Default) Resume() { d.setPaused(false) }

func (d *Default) setPaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return
	}
	speaker.Lock()
	d.current.ctrl.Paused = paused
	speaker.Unlock()
}

// Stop прерывает текущий поток; канал завершения получает ErrStopped.
func (d *Default) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.stopLocked(d.current)
		d.current = nil
	}
}

func (d *Default) stopLocked(pb *playback) {
	speaker.Lock()
	pb.ctrl.Streamer = nil
	speaker.Unlock()
	pb.finish(ErrStopped)
}
