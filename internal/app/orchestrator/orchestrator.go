package orchestrator

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/feed"
	"RSSVoiceReader/internal/service/recognizer"
	"RSSVoiceReader/internal/service/tts"
	ttsplayer "RSSVoiceReader/internal/service/tts/player"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Player — то, что оркестратору нужно от аудиоплеера.
type Player interface {
	Play(path string) (<-chan error, error)
	Pause()
	Resume()
	Stop()
}

// Chime — опциональный звук-подсказка перед окном распознавания.
type Chime interface {
	Enabled() bool
	Play(ctx context.Context) error
}

// Orchestrator — единственный владелец очереди чтения, кэша аудио и
// активации пайплайна распознавания. Все мутации состояния происходят
// в одном цикле обработки событий (один почтовый ящик), поэтому
// внутренние поля не требуют блокировок.
type Orchestrator struct {
	cfg      *config.Config
	fetcher  feed.Fetcher
	tts      tts.Synthesizer
	player   Player
	recog    recognizer.Pipeline
	logger   *zap.SugaredLogger
	clock    Clock
	listener Listener
	chime    Chime

	mailbox chan event
	stopped chan struct{}

	// Всё ниже принадлежит циклу обработки событий.
	st            State
	lastStatus    Status
	gen           int64
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	items   []feed.Item
	index   map[string]int
	queue   []string
	current string

	pendingSynth     map[string]struct{}
	headlineAudio    map[string]string
	descriptionAudio map[string]string
	degraded         map[string]struct{}

	welcomePath       string
	welcomeAnnounced  bool
	welcomeFinished   bool
	finishedAnnounced bool
	descriptionBusy   bool
	paused            bool

	windowGen    int64
	windowTimer  Timer
	windowCancel chan struct{}
}

type eventKind int

const (
	evLoaded eventKind = iota + 1
	evLoadFailed
	evActivate
	evDeactivate
	evPause
	evResume
	evRequestDescription
	evSynthDone
	evPlaybackDone
	evWindowElapsed
	evTranscript
	evRecognitionTimeout
	evRecognitionError
)

type synthKind int

const (
	synthHeadline synthKind = iota + 1
	synthDescription
	synthWelcome
	synthFinished
)

type event struct {
	kind      eventKind
	gen       int64
	windowGen int64
	synth     synthKind
	items     []feed.Item
	itemID    string
	text      string
	path      string
	err       error
}

// New создаёт оркестратор. Перед Run можно подменить часы, наблюдателя
// и звук-подсказку через Set*.
func New(cfg *config.Config, fetcher feed.Fetcher, synth tts.Synthesizer, ply Player, recog recognizer.Pipeline, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		tts:      synth,
		player:   ply,
		recog:    recog,
		logger:   logger,
		clock:    SystemClock{},
		listener: NopListener{},
		mailbox:  make(chan event, 256),
		stopped:  make(chan struct{}),
		index:    map[string]int{},
	}
}

// SetClock подменяет источник таймеров (для тестов).
func (o *Orchestrator) SetClock(c Clock) { o.clock = c }

// SetListener задаёт наблюдателя состояния.
func (o *Orchestrator) SetListener(l Listener) {
	if l != nil {
		o.listener = l
	}
}

// SetChime задаёт звук-подсказку перед окном распознавания.
func (o *Orchestrator) SetChime(c Chime) { o.chime = c }

// Run крутит цикл обработки событий до отмены контекста.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.stopped)

	// Транслируем события пайплайна распознавания в почтовый ящик
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-o.recog.Events():
				if !ok {
					return
				}
				switch ev.Type {
				case recognizer.EventTranscript:
					o.post(event{kind: evTranscript, text: ev.Text})
				case recognizer.EventTimeout:
					o.post(event{kind: evRecognitionTimeout})
				case recognizer.EventError:
					o.post(event{kind: evRecognitionError, err: ev.Err})
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			o.closeWindow()
			o.player.Stop()
			if o.sessionCancel != nil {
				o.sessionCancel()
			}
			return context.Cause(ctx)
		case ev := <-o.mailbox:
			o.handle(ctx, ev)
		}
	}
}

// post кладёт событие в почтовый ящик; после остановки цикла — дроп.
func (o *Orchestrator) post(ev event) {
	select {
	case <-o.stopped:
	case o.mailbox <- ev:
	}
}

// Load скачивает ленту и по успеху заменяет список статей и очередь,
// запуская приветствие и кэширование. При ошибке состояние не меняется.
func (o *Orchestrator) Load(ctx context.Context, feedURL string) {
	go func() {
		items, err := o.fetcher.Fetch(ctx, feedURL)
		if err != nil {
			o.post(event{kind: evLoadFailed, err: err})
			return
		}
		o.post(event{kind: evLoaded, items: items})
	}()
}

// Activate идемпотентно запускает цикл чтения, если он не идёт.
func (o *Orchestrator) Activate() { o.post(event{kind: evActivate}) }

// Deactivate немедленно останавливает воспроизведение и распознавание.
// Кэш и позиция в очереди сохраняются — чтение можно возобновить.
func (o *Orchestrator) Deactivate() { o.post(event{kind: evDeactivate}) }

// Pause приостанавливает воспроизведение без сдвига очереди.
func (o *Orchestrator) Pause() { o.post(event{kind: evPause}) }

// Resume продолжает приостановленное воспроизведение.
func (o *Orchestrator) Resume() { o.post(event{kind: evResume}) }

// RequestDescription просит прочитать описание статьи вместо перехода
// к следующему заголовку. Пустой id — текущая статья.
func (o *Orchestrator) RequestDescription(itemID string) {
	o.post(event{kind: evRequestDescription, itemID: itemID})
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evLoaded:
		o.handleLoaded(ctx, ev.items)
	case evLoadFailed:
		o.logger.Errorw("Не удалось загрузить ленту", "error", ev.err)
		o.listener.OnError(ev.err)
	case evActivate:
		o.handleActivate()
	case evDeactivate:
		o.handleDeactivate()
	case evPause:
		o.handlePause()
	case evResume:
		o.handleResume()
	case evRequestDescription:
		o.handleRequestDescription(ev.itemID)
	case evSynthDone:
		o.handleSynthDone(ev)
	case evPlaybackDone:
		o.handlePlaybackDone(ev)
	case evWindowElapsed:
		o.handleWindowElapsed(ev)
	case evTranscript:
		o.handleTranscript(ev.text)
	case evRecognitionTimeout:
		// Тайм-аут пайплайна не двигает каденцию: ей управляет наш таймер окна
		o.logger.Debugw("Пайплайн распознавания сообщил о тайм-ауте")
	case evRecognitionError:
		o.logger.Warnw("Ошибка распознавания", "error", ev.err)
		o.listener.OnError(ev.err)
	}
}

// handleLoaded устанавливает новый список статей. Предыдущий цикл,
// если он шёл, отменяется целиком до установки нового.
func (o *Orchestrator) handleLoaded(ctx context.Context, items []feed.Item) {
	if o.sessionCancel != nil {
		o.sessionCancel()
	}
	o.closeWindow()
	o.player.Stop()

	o.gen++
	o.sessionCtx, o.sessionCancel = context.WithCancel(ctx)

	o.items = items
	o.index = make(map[string]int, len(items))
	o.queue = make([]string, 0, len(items))
	for i, it := range items {
		o.index[it.ID] = i
		o.queue = append(o.queue, it.ID)
	}
	o.current = ""
	o.pendingSynth = make(map[string]struct{}, len(items))
	o.headlineAudio = make(map[string]string, len(items))
	o.descriptionAudio = map[string]string{}
	o.degraded = map[string]struct{}{}
	o.welcomePath = ""
	o.welcomeAnnounced = false
	o.welcomeFinished = false
	o.finishedAnnounced = false
	o.descriptionBusy = false
	o.paused = false

	o.listener.OnFeedItems(items)
	o.listener.OnCurrentItem(nil)
	o.beginSession()
}

// beginSession запускает приветствие и конкурентное кэширование заголовков.
func (o *Orchestrator) beginSession() {
	for _, it := range o.items {
		o.pendingSynth[it.ID] = struct{}{}
		o.synthesize(synthHeadline, it.ID, it.Title)
	}

	o.welcomeAnnounced = true
	o.st = StateAnnouncingWelcome
	o.setStatus(StatusWaiting)
	if strings.TrimSpace(o.cfg.WelcomeMessage) == "" {
		o.welcomeFinished = true
		o.maybeBeginPlayback()
		return
	}
	o.synthesize(synthWelcome, "", o.cfg.WelcomeMessage)
}

// synthesize запускает синтез в горутине; результат вернётся событием.
func (o *Orchestrator) synthesize(kind synthKind, itemID, text string) {
	ctx, gen := o.sessionCtx, o.gen
	go func() {
		path, err := o.tts.Synthesize(ctx, text)
		o.post(event{kind: evSynthDone, gen: gen, synth: kind, itemID: itemID, path: path, err: err})
	}()
}

func (o *Orchestrator) handleSynthDone(ev event) {
	if ev.gen != o.gen {
		return // результат отменённого цикла
	}
	switch ev.synth {
	case synthHeadline:
		if ev.err != nil {
			// Статья без аудио: барьер её больше не ждёт, при чтении пропустим
			o.logger.Warnw("Синтез заголовка не удался — статья будет пропущена", "id", ev.itemID, "error", ev.err)
			o.degraded[ev.itemID] = struct{}{}
		} else {
			o.headlineAudio[ev.itemID] = ev.path
		}
		delete(o.pendingSynth, ev.itemID)
		o.maybeBeginPlayback()
	case synthWelcome:
		if ev.err != nil {
			o.logger.Warnw("Синтез приветствия не удался", "error", ev.err)
			o.welcomeFinished = true
			o.maybeBeginPlayback()
			return
		}
		o.welcomePath = ev.path
		if o.st == StateAnnouncingWelcome {
			o.play(ev.path)
			o.setStatus(StatusPlaying)
		}
	case synthFinished:
		if ev.err != nil {
			o.logger.Warnw("Синтез финального сообщения не удался", "error", ev.err)
			o.setStatus(StatusFinished)
			o.current = ""
			o.listener.OnCurrentItem(nil)
			return
		}
		if o.st == StateAnnouncingFinished {
			o.play(ev.path)
			o.setStatus(StatusPlaying)
		}
	case synthDescription:
		if ev.err != nil {
			o.logger.Warnw("Синтез описания не удался", "id", ev.itemID, "error", ev.err)
			if o.st == StatePlayingDescription && o.descriptionBusy {
				o.descriptionBusy = false
				o.advance()
			}
			return
		}
		o.descriptionAudio[ev.itemID] = ev.path
		if o.st == StatePlayingDescription && o.descriptionBusy && o.current == ev.itemID {
			o.play(ev.path)
			o.setStatus(StatusPlaying)
		}
	}
}

// maybeBeginPlayback начинает чтение заголовков, когда выполнены оба
// условия: приветствие дозвучало и все синтезы завершились (барьер
// по множеству ожидающих id, а не по счётчикам).
func (o *Orchestrator) maybeBeginPlayback() {
	if o.st != StateAnnouncingWelcome && o.st != StateCachingAudio {
		return
	}
	if !o.welcomeFinished {
		return
	}
	if len(o.pendingSynth) > 0 {
		o.st = StateCachingAudio
		o.setStatus(StatusWaiting)
		return
	}
	o.advance()
}

// advance снимает следующую статью с очереди и играет её заголовок.
// Порядок строго FIFO независимо от порядка завершения синтезов.
func (o *Orchestrator) advance() {
	if len(o.pendingSynth) > 0 {
		o.st = StateCachingAudio
		o.setStatus(StatusWaiting)
		return
	}
	for len(o.queue) > 0 {
		id := o.queue[0]
		o.queue = o.queue[1:]
		if _, bad := o.degraded[id]; bad {
			continue
		}
		path, ok := o.headlineAudio[id]
		if !ok {
			o.logger.Warnw("Нет закэшированного аудио для статьи", "id", id)
			continue
		}
		o.current = id
		it := o.items[o.index[id]]
		o.listener.OnCurrentItem(&it)
		o.st = StatePlayingHeadline
		o.play(path)
		o.setStatus(StatusPlaying)
		return
	}
	o.finishSession()
}

// finishSession объявляет финальное сообщение ровно один раз и
// навсегда выключает распознавание. Терминальное состояние.
func (o *Orchestrator) finishSession() {
	if o.finishedAnnounced {
		return
	}
	o.finishedAnnounced = true
	o.closeWindow()
	o.current = ""
	o.listener.OnCurrentItem(nil)
	o.st = StateAnnouncingFinished
	if strings.TrimSpace(o.cfg.FinishedMessage) == "" {
		o.setStatus(StatusFinished)
		return
	}
	o.setStatus(StatusWaiting)
	o.synthesize(synthFinished, "", o.cfg.FinishedMessage)
}

func (o *Orchestrator) handlePlaybackDone(ev event) {
	if ev.gen != o.gen {
		return
	}
	if errors.Is(ev.err, ttsplayer.ErrStopped) {
		// Прерывание по Stop(): состояние уже сменил инициатор
		return
	}
	if ev.err != nil {
		// Ошибку воспроизведения трактуем как завершение, чтобы не замораживать каденцию
		o.logger.Warnw("Ошибка воспроизведения — переходим дальше", "error", ev.err)
	}
	switch o.st {
	case StateAnnouncingWelcome:
		o.welcomeFinished = true
		o.maybeBeginPlayback()
	case StatePlayingHeadline:
		o.openWindow()
	case StatePlayingDescription:
		o.descriptionBusy = false
		o.advance()
	case StateAnnouncingFinished:
		o.setStatus(StatusFinished)
	default:
		// Idle и пр.: хвост остановленного воспроизведения
	}
}

// openWindow открывает окно распознавания: активация пайплайна и таймер —
// одна отменяемая единица; токеном служит windowGen.
func (o *Orchestrator) openWindow() {
	o.st = StateListeningForCommand
	o.setStatus(StatusListening)

	o.windowGen++
	winGen, gen := o.windowGen, o.gen

	if o.chime != nil && o.chime.Enabled() {
		chimeCtx := o.sessionCtx
		go func() { _ = o.chime.Play(chimeCtx) }()
	}

	if err := o.recog.Activate(o.sessionCtx); err != nil {
		// Окно всё равно живёт по таймеру: ошибка распознавания не блокирует каденцию
		o.logger.Warnw("Не удалось активировать распознавание", "error", err)
		o.listener.OnError(err)
	}

	tm := o.clock.NewTimer(o.cfg.ActionDelay)
	cancelCh := make(chan struct{})
	o.windowTimer = tm
	o.windowCancel = cancelCh
	go func() {
		select {
		case <-cancelCh:
		case <-tm.C():
			o.post(event{kind: evWindowElapsed, gen: gen, windowGen: winGen})
		}
	}()
}

// closeWindow гасит таймер и пайплайн вместе и инвалидирует уже
// поставленные в очередь события окна.
func (o *Orchestrator) closeWindow() {
	if o.windowCancel != nil {
		close(o.windowCancel)
		o.windowCancel = nil
	}
	if o.windowTimer != nil {
		o.windowTimer.Stop()
		o.windowTimer = nil
	}
	o.windowGen++
	if err := o.recog.Deactivate(); err != nil {
		o.logger.Warnw("Не удалось деактивировать распознавание", "error", err)
	}
}

func (o *Orchestrator) handleWindowElapsed(ev event) {
	if ev.gen != o.gen || ev.windowGen != o.windowGen || o.st != StateListeningForCommand {
		return // токен окна инвалидирован — путь-неудачник превращается в no-op
	}
	o.closeWindow()
	o.advance()
}

func (o *Orchestrator) handleTranscript(text string) {
	if o.st != StateListeningForCommand {
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(o.cfg.ActionPhrase)) {
		// Прочие фразы игнорируем, окно продолжает слушать
		return
	}
	o.closeWindow()
	o.handleRequestDescription(o.current)
}

func (o *Orchestrator) handleRequestDescription(itemID string) {
	if o.descriptionBusy {
		// Первый запрос выигрывает: наложение аудио хуже потерянной команды
		o.logger.Infow("Описание уже читается — новый запрос отброшен")
		return
	}
	if o.st == StateAnnouncingFinished {
		return
	}
	if itemID == "" {
		itemID = o.current
	}
	idx, ok := o.index[itemID]
	if itemID == "" || !ok {
		return
	}

	// Прерываем текущую каденцию
	switch o.st {
	case StateAnnouncingWelcome:
		o.player.Stop()
		o.welcomeFinished = true
	case StatePlayingHeadline, StatePlayingDescription:
		o.player.Stop()
	case StateListeningForCommand:
		o.closeWindow()
	}

	it := o.items[idx]
	o.descriptionBusy = true
	o.current = itemID
	o.listener.OnCurrentItem(&it)
	o.st = StatePlayingDescription

	if path, cached := o.descriptionAudio[itemID]; cached {
		o.play(path)
		o.setStatus(StatusPlaying)
		return
	}
	o.setStatus(StatusWaiting)
	o.synthesize(synthDescription, itemID, it.Description)
}

func (o *Orchestrator) handleActivate() {
	if o.st != StateIdle {
		return // уже идёт
	}
	if len(o.items) == 0 {
		return
	}
	if o.finishedAnnounced {
		o.setStatus(StatusFinished)
		return
	}
	// Приветствие одноразовое: при возобновлении его не повторяем
	o.welcomeFinished = true
	if o.current != "" {
		// Возобновляем с текущей статьи, позиция очереди не терялась
		if path, ok := o.headlineAudio[o.current]; ok {
			if idx, found := o.index[o.current]; found {
				it := o.items[idx]
				o.listener.OnCurrentItem(&it)
			}
			o.st = StatePlayingHeadline
			o.play(path)
			o.setStatus(StatusPlaying)
			return
		}
	}
	o.maybeResumeOrAdvance()
}

func (o *Orchestrator) maybeResumeOrAdvance() {
	if len(o.pendingSynth) > 0 {
		o.st = StateCachingAudio
		o.setStatus(StatusWaiting)
		return
	}
	o.advance()
}

func (o *Orchestrator) handleDeactivate() {
	o.closeWindow()
	o.player.Stop()
	o.paused = false
	o.descriptionBusy = false
	if o.st == StateAnnouncingWelcome {
		// Приветствие уже прозвучало (пусть и не целиком) — второй раз не объявляем
		o.welcomeFinished = true
	}
	if o.st != StateAnnouncingFinished {
		o.st = StateIdle
	}
	o.setStatus(StatusUnknown)
}

func (o *Orchestrator) handlePause() {
	if o.paused {
		return
	}
	switch o.st {
	case StatePlayingHeadline, StatePlayingDescription, StateAnnouncingWelcome, StateAnnouncingFinished:
		o.player.Pause()
		o.paused = true
		o.setStatus(StatusPaused)
	}
}

func (o *Orchestrator) handleResume() {
	if !o.paused {
		return
	}
	o.player.Resume()
	o.paused = false
	o.setStatus(StatusPlaying)
}

// play запускает воспроизведение; завершение вернётся событием.
func (o *Orchestrator) play(path string) {
	gen := o.gen
	done, err := o.player.Play(path)
	if err != nil {
		o.logger.Warnw("Не удалось начать воспроизведение", "path", path, "error", err)
		go o.post(event{kind: evPlaybackDone, gen: gen, err: err})
		return
	}
	go func() {
		o.post(event{kind: evPlaybackDone, gen: gen, err: <-done})
	}()
}

func (o *Orchestrator) setStatus(s Status) {
	if s == o.lastStatus {
		return
	}
	o.lastStatus = s
	o.listener.OnStatus(s)
}
