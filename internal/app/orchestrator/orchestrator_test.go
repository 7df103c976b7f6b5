package orchestrator_test

import (
	"RSSVoiceReader/internal/app/orchestrator"
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/feed"
	"RSSVoiceReader/internal/service/recognizer"
	ttsplayer "RSSVoiceReader/internal/service/tts/player"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testFinished = "You're all caught up"
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// --- дублёры внешних сервисов ---

type synthResult struct {
	path string
	err  error
}

// fakeSynth — синтезатор с ручным управлением завершением запросов.
type fakeSynth struct {
	mu    sync.Mutex
	reqs  []string
	waits map[string][]chan synthResult
	fail  map[string]error
	auto  bool
}

func newFakeSynth(auto bool) *fakeSynth {
	return &fakeSynth{waits: map[string][]chan synthResult{}, fail: map[string]error{}, auto: auto}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, text)
	if err, ok := f.fail[text]; ok {
		f.mu.Unlock()
		return "", err
	}
	if f.auto {
		f.mu.Unlock()
		return "audio://" + text, nil
	}
	ch := make(chan synthResult, 1)
	f.waits[text] = append(f.waits[text], ch)
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.path, r.err
	}
}

// release завершает один висящий запрос на данный текст.
func (f *fakeSynth) release(t *testing.T, text string) {
	t.Helper()
	var ch chan synthResult
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.waits[text]) == 0 {
			return false
		}
		ch = f.waits[text][0]
		f.waits[text] = f.waits[text][1:]
		return true
	}, waitFor, tick, "нет висящего запроса синтеза для %q", text)
	ch <- synthResult{path: "audio://" + text}
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reqs {
		if r == text {
			n++
		}
	}
	return n
}

// fakePlayer — плеер с ручным завершением; повторный Play прерывает предыдущий.
type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	cur     chan error
	pauses  int
	resumes int
	stops   int
}

func (p *fakePlayer) Play(path string) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		select {
		case p.cur <- ttsplayer.ErrStopped:
		default:
		}
	}
	p.played = append(p.played, path)
	p.cur = make(chan error, 1)
	return p.cur, nil
}

func (p *fakePlayer) Pause()  { p.mu.Lock(); p.pauses++; p.mu.Unlock() }
func (p *fakePlayer) Resume() { p.mu.Lock(); p.resumes++; p.mu.Unlock() }

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.cur != nil {
		select {
		case p.cur <- ttsplayer.ErrStopped:
		default:
		}
		p.cur = nil
	}
}

// finish завершает текущее воспроизведение «по-честному» (доиграло до конца).
func (p *fakePlayer) finish(t *testing.T) {
	t.Helper()
	var ch chan error
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.cur == nil {
			return false
		}
		ch = p.cur
		p.cur = nil
		return true
	}, waitFor, tick, "нечего завершать: ничего не играет")
	ch <- nil
}

func (p *fakePlayer) playedList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

// fakeRecog — пайплайн распознавания с ручной подачей транскриптов.
type fakeRecog struct {
	mu            sync.Mutex
	activations   int
	deactivations int
	events        chan recognizer.Event
}

func newFakeRecog() *fakeRecog {
	return &fakeRecog{events: make(chan recognizer.Event, 16)}
}

func (r *fakeRecog) Activate(ctx context.Context) error {
	r.mu.Lock()
	r.activations++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecog) Deactivate() error {
	r.mu.Lock()
	r.deactivations++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecog) Events() <-chan recognizer.Event { return r.events }

func (r *fakeRecog) transcript(text string) {
	r.events <- recognizer.Event{Type: recognizer.EventTranscript, Text: text, At: time.Now()}
}

func (r *fakeRecog) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activations, r.deactivations
}

// fakeClock — таймеры, которые стреляют только по команде теста.
type fakeTimer struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) NewTimer(time.Duration) orchestrator.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

// fire дожидается появления таймера с номером n (с единицы) и стреляет им.
func (c *fakeClock) fire(t *testing.T, n int) {
	t.Helper()
	var tm *fakeTimer
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.timers) < n {
			return false
		}
		tm = c.timers[n-1]
		return true
	}, waitFor, tick, "таймер окна №%d так и не создан", n)
	tm.ch <- time.Now()
}

// recListener копит уведомления для проверок.
type recListener struct {
	mu       sync.Mutex
	currents []string
	statuses []orchestrator.Status
	errs     []error
}

func (l *recListener) OnFeedItems([]feed.Item) {}

func (l *recListener) OnCurrentItem(item *feed.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item == nil {
		l.currents = append(l.currents, "")
		return
	}
	l.currents = append(l.currents, item.Title)
}

func (l *recListener) OnStatus(s orchestrator.Status) {
	l.mu.Lock()
	l.statuses = append(l.statuses, s)
	l.mu.Unlock()
}

func (l *recListener) OnError(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *recListener) lastStatus() orchestrator.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.statuses) == 0 {
		return orchestrator.StatusUnknown
	}
	return l.statuses[len(l.statuses)-1]
}

func (l *recListener) statusCount(s orchestrator.Status) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.statuses {
		if st == s {
			n++
		}
	}
	return n
}

// fakeFetcher отдаёт заранее заданные списки статей по очереди вызовов.
type fakeFetcher struct {
	mu      sync.Mutex
	batches [][]feed.Item
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) ([]feed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

// --- обвязка ---

type fixture struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	synth  *fakeSynth
	ply    *fakePlayer
	recog  *fakeRecog
	clock  *fakeClock
	lis    *recListener
	fetch  *fakeFetcher
	ctx    context.Context
	cancel context.CancelFunc
}

func newFixture(t *testing.T, autoSynth bool, batches ...[]feed.Item) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.WelcomeMessage = "" // большинству тестов приветствие не нужно
	cfg.FinishedMessage = testFinished
	cfg.ActionPhrase = "Tell me more"

	f := &fixture{
		cfg:   cfg,
		synth: newFakeSynth(autoSynth),
		ply:   &fakePlayer{},
		recog: newFakeRecog(),
		clock: &fakeClock{},
		lis:   &recListener{},
		fetch: &fakeFetcher{batches: batches},
	}
	f.orch = orchestrator.New(cfg, f.fetch, f.synth, f.ply, f.recog, zap.NewNop().Sugar())
	f.orch.SetClock(f.clock)
	f.orch.SetListener(f.lis)

	f.ctx, f.cancel = context.WithCancel(context.Background())
	go func() { _ = f.orch.Run(f.ctx) }()
	t.Cleanup(f.cancel)
	return f
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	f.orch.Load(f.ctx, f.cfg.FeedURL)
}

func threeItems() []feed.Item {
	return []feed.Item{
		{ID: "a", Title: "first headline", Description: "first description", Link: "https://example.com/1"},
		{ID: "b", Title: "second headline", Description: "second description", Link: "https://example.com/2"},
		{ID: "c", Title: "third headline", Description: "third description", Link: "https://example.com/3"},
	}
}

func (f *fixture) requirePlayed(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := f.ply.playedList()
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}, waitFor, tick, "ожидался порядок воспроизведения %v, получено %v", want, f.ply.playedList())
}

// --- тесты ---

// Порядок чтения строго совпадает с порядком ленты, как бы ни
// перемешались завершения синтеза.
func TestPlaybackOrderIndependentOfSynthesisCompletion(t *testing.T) {
	f := newFixture(t, false, threeItems())
	f.load(t)

	// синтезы завершаются в обратном порядке
	f.synth.release(t, "third headline")
	f.synth.release(t, "second headline")
	f.synth.release(t, "first headline")

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)
	f.clock.fire(t, 1)

	f.requirePlayed(t, "audio://first headline", "audio://second headline")
	f.ply.finish(t)
	f.clock.fire(t, 2)

	f.requirePlayed(t, "audio://first headline", "audio://second headline", "audio://third headline")
	f.ply.finish(t)
	f.clock.fire(t, 3)

	// финальное сообщение — ровно один раз
	f.synth.release(t, testFinished)
	f.requirePlayed(t,
		"audio://first headline", "audio://second headline", "audio://third headline",
		"audio://"+testFinished)
	f.ply.finish(t)

	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusFinished
	}, waitFor, tick)
	assert.Equal(t, 1, f.synth.count(testFinished))
}

// Воспроизведение не начинается, пока не закэшированы все заголовки.
func TestWholeBatchBarrier(t *testing.T) {
	f := newFixture(t, false, threeItems())
	f.load(t)

	f.synth.release(t, "first headline")
	f.synth.release(t, "second headline")

	// третий синтез ещё висит — играть рано
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.ply.playedList())

	f.synth.release(t, "third headline")
	f.requirePlayed(t, "audio://first headline")
}

// Приветствие и финальное сообщение озвучиваются не более одного раза за сессию.
func TestAnnouncementsFireOnce(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.cfg.WelcomeMessage = "Downloading feed."
	f.load(t)

	// приветствие играет первым
	f.requirePlayed(t, "audio://Downloading feed.")
	f.ply.finish(t)

	for i := 1; i <= 3; i++ {
		f.ply.finish(t) // заголовок доиграл
		f.clock.fire(t, i)
	}
	// финальное сообщение
	require.Eventually(t, func() bool {
		return f.synth.count(testFinished) > 0
	}, waitFor, tick)
	f.ply.finish(t)

	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusFinished
	}, waitFor, tick)

	assert.Equal(t, 1, f.synth.count("Downloading feed."))
	assert.Equal(t, 1, f.synth.count(testFinished))
}

// Deactivate из окна распознавания гасит таймер: его поздний выстрел — no-op.
func TestDeactivateCancelsRecognitionWindow(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)

	// окно открыто
	require.Eventually(t, func() bool {
		act, _ := f.recog.counts()
		return act == 1
	}, waitFor, tick)

	f.orch.Deactivate()
	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusUnknown
	}, waitFor, tick)
	_, deact := f.recog.counts()
	assert.GreaterOrEqual(t, deact, 1)

	// осиротевший таймер стреляет — продвижения быть не должно
	f.clock.fire(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"audio://first headline"}, f.ply.playedList())
}

// После Deactivate чтение возобновляется с той же статьи.
func TestDeactivateIsResumable(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)
	f.clock.fire(t, 1)
	f.requirePlayed(t, "audio://first headline", "audio://second headline")

	f.orch.Deactivate()
	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusUnknown
	}, waitFor, tick)

	f.orch.Activate()
	// вторая статья читается заново, очередь не сдвинулась
	f.requirePlayed(t, "audio://first headline", "audio://second headline", "audio://second headline")
}

// Команда и таймер окна взаимоисключающие: победил транскрипт — таймер no-op.
func TestTranscriptBeatsWindowTimer(t *testing.T) {
	f := newFixture(t, false, threeItems())
	f.load(t)
	f.synth.release(t, "first headline")
	f.synth.release(t, "second headline")
	f.synth.release(t, "third headline")

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)

	require.Eventually(t, func() bool {
		act, _ := f.recog.counts()
		return act == 1
	}, waitFor, tick)

	// фраза-триггер в середине транскрипта, регистр другой
	f.recog.transcript("please TELL ME MORE about that")

	f.synth.release(t, "first description")
	f.requirePlayed(t, "audio://first headline", "audio://first description")

	// опоздавший таймер того же окна ничего не двигает
	f.clock.fire(t, 1)
	time.Sleep(50 * time.Millisecond)
	f.requirePlayed(t, "audio://first headline", "audio://first description")

	// после описания каденция продолжается со следующей статьи
	f.ply.finish(t)
	f.requirePlayed(t, "audio://first headline", "audio://first description", "audio://second headline")
}

// Посторонние фразы игнорируются, окно продолжает слушать до таймера.
func TestUnrelatedTranscriptIgnored(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)

	f.recog.transcript("what a lovely weather")
	time.Sleep(50 * time.Millisecond)
	f.requirePlayed(t, "audio://first headline")

	f.clock.fire(t, 1)
	f.requirePlayed(t, "audio://first headline", "audio://second headline")
}

// Три статьи, ни одной команды: продвижение чисто по тайм-аутам,
// финал объявляется ровно один раз.
func TestTimeoutOnlyRun(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.cfg.ActionDelay = 5500 * time.Millisecond // длительность окна роли не играет: часы подменены
	f.load(t)

	f.requirePlayed(t, "audio://first headline")
	for i := 1; i <= 3; i++ {
		f.ply.finish(t)
		f.clock.fire(t, i)
	}
	// после третьего тайм-аута — финал
	f.requirePlayed(t,
		"audio://first headline", "audio://second headline", "audio://third headline",
		"audio://"+testFinished)
	f.ply.finish(t)

	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusFinished
	}, waitFor, tick)
	assert.Equal(t, 1, f.synth.count(testFinished))
	assert.Equal(t, 1, f.lis.statusCount(orchestrator.StatusFinished))
}

// Неудавшийся синтез не замораживает барьер: статья пропускается.
func TestSynthesisFailureSkipsItem(t *testing.T) {
	f := newFixture(t, false, threeItems())
	f.synth.fail["second headline"] = errors.New("tts unavailable")
	f.load(t)

	f.synth.release(t, "first headline")
	f.synth.release(t, "third headline")

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)
	f.clock.fire(t, 1)

	// вторая статья пропущена, сразу третья
	f.requirePlayed(t, "audio://first headline", "audio://third headline")
	f.ply.finish(t)
	f.clock.fire(t, 2)

	f.synth.release(t, testFinished)
	f.requirePlayed(t, "audio://first headline", "audio://third headline", "audio://"+testFinished)
}

// Повторный Load отменяет прежний цикл целиком и начинает новый.
func TestReloadCancelsInflightCycle(t *testing.T) {
	second := []feed.Item{
		{ID: "x", Title: "fresh headline", Description: "fresh description"},
	}
	f := newFixture(t, true, threeItems(), second)
	f.load(t)

	f.requirePlayed(t, "audio://first headline")

	// перезагрузка посреди чтения
	f.load(t)
	f.requirePlayed(t, "audio://first headline", "audio://fresh headline")

	// хвост старого цикла (заголовки a/b/c) больше не проигрывается;
	// старый цикл не успел открыть ни одного окна, так что таймер №1 — уже нового
	f.ply.finish(t)
	f.clock.fire(t, 1)
	require.Eventually(t, func() bool {
		return f.synth.count(testFinished) == 1
	}, waitFor, tick)
	played := f.ply.playedList()
	for _, p := range played {
		assert.NotContains(t, []string{"audio://second headline", "audio://third headline"}, p)
	}
}

// Пока читается описание, новый запрос описания отбрасывается (первый выигрывает).
func TestRequestDescriptionFirstCallWins(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")
	f.ply.finish(t)
	f.recog.transcript("tell me more")

	f.requirePlayed(t, "audio://first headline", "audio://first description")

	f.orch.RequestDescription("b")
	time.Sleep(50 * time.Millisecond)
	f.requirePlayed(t, "audio://first headline", "audio://first description")
	assert.Equal(t, 0, f.synth.count("second description"))
}

// Pause/Resume не сдвигают очередь и меняют только статус.
func TestPauseResume(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")

	f.orch.Pause()
	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusPaused
	}, waitFor, tick)

	f.orch.Resume()
	require.Eventually(t, func() bool {
		return f.lis.lastStatus() == orchestrator.StatusPlaying
	}, waitFor, tick)

	// очередь не тронута: доигрываем первую, затем вторая
	f.ply.finish(t)
	f.clock.fire(t, 1)
	f.requirePlayed(t, "audio://first headline", "audio://second headline")
}

// Ошибка загрузки ленты не трогает уже установленное состояние.
func TestLoadFailureKeepsState(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)
	f.requirePlayed(t, "audio://first headline")

	f.fetch.mu.Lock()
	f.fetch.err = errors.New("feed unreachable")
	f.fetch.mu.Unlock()
	f.load(t)

	require.Eventually(t, func() bool {
		f.lis.mu.Lock()
		defer f.lis.mu.Unlock()
		return len(f.lis.errs) == 1
	}, waitFor, tick)

	// каденция жива: доигрываем и идём дальше
	f.ply.finish(t)
	f.clock.fire(t, 1)
	f.requirePlayed(t, "audio://first headline", "audio://second headline")
}

// Ошибка воспроизведения трактуется как завершение: каденция идёт дальше.
func TestPlaybackErrorAdvances(t *testing.T) {
	f := newFixture(t, true, threeItems())
	f.load(t)

	f.requirePlayed(t, "audio://first headline")

	// доставляем ошибку воспроизведения вместо нормального конца
	f.ply.mu.Lock()
	ch := f.ply.cur
	f.ply.cur = nil
	f.ply.mu.Unlock()
	require.NotNil(t, ch)
	ch <- fmt.Errorf("decoder failure")

	// окно всё равно открывается, затем переход к следующей статье
	f.clock.fire(t, 1)
	f.requirePlayed(t, "audio://first headline", "audio://second headline")
}
