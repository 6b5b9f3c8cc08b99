package localdj

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// OrchestratorConfig holds the tunables from spec.md §6 that shape
// the queue/timer/reply-interrupt state machine.
type OrchestratorConfig struct {
	MaxResults             int
	TimerBuffer            time.Duration
	ReplyInterruptTimeout  time.Duration
	ReplyInterruptCooldown time.Duration
	AutoResumeDelay        time.Duration
}

// DefaultOrchestratorConfig returns the defaults named in spec.md §6.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxResults:             20,
		TimerBuffer:            1500 * time.Millisecond,
		ReplyInterruptTimeout:  20 * time.Second,
		ReplyInterruptCooldown: 1200 * time.Millisecond,
		AutoResumeDelay:        1800 * time.Millisecond,
	}
}

// Orchestrator is the playback state machine described in spec.md
// §4.F: it owns the current song, the pending queue, the auto-advance
// timer, and the reply-interrupt/whitelist-resume sub-protocols. All
// mutable state is guarded by a single mutex (mu, spec.md's "L"); the
// index refresh path is guarded separately by refreshMu ("R") and
// never nests with mu.
type Orchestrator struct {
	cfg OrchestratorConfig

	idx     *Indexer
	store   *IndexStore
	probe   DurationProbe
	device  DeviceControl
	gateway *Gateway
	sets    KeywordSets

	snapshot atomic.Pointer[Snapshot]
	dirs     []string

	mu      sync.Mutex
	current *SongItem
	queue   []SongItem
	epoch   uint64 // bumped on every state transition; invalidates in-flight timers
	timer   *time.Timer

	replyArmed      bool
	replyArmedAt    time.Time
	replyReason     string
	lastReplyStopAt time.Time

	whitelistSeq uint64

	refreshMu sync.Mutex

	log *logrus.Entry
}

// NewOrchestrator wires together the indexer, store, probe, device
// control and gateway collaborators behind the queue state machine.
func NewOrchestrator(
	dirs []string,
	idx *Indexer,
	store *IndexStore,
	probe DurationProbe,
	device DeviceControl,
	gateway *Gateway,
	sets KeywordSets,
	cfg OrchestratorConfig,
) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		idx:     idx,
		store:   store,
		probe:   probe,
		device:  device,
		gateway: gateway,
		sets:    sets,
		dirs:    dirs,
		log:     logrus.WithField("component", "orchestrator"),
	}
	o.snapshot.Store(&Snapshot{})
	return o
}

// LoadCachedIndex seeds the in-memory snapshot from the index store
// without performing a filesystem walk, so the first search after
// startup doesn't have to wait on a full refresh.
func (o *Orchestrator) LoadCachedIndex() {
	songs := o.store.Load()
	o.snapshot.Store(&Snapshot{Songs: songs})
}

// ---- reply-interrupt sub-protocol ----------------------------------

func (o *Orchestrator) arm(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.armLocked(reason)
}

func (o *Orchestrator) armLocked(reason string) {
	o.replyArmed = true
	o.replyArmedAt = time.Now()
	o.replyReason = reason
	o.log.WithField("reason", reason).Info("reply-interrupt window armed")
}

func (o *Orchestrator) disarm(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disarmLocked(reason)
}

func (o *Orchestrator) disarmLocked(reason string) {
	if !o.replyArmed {
		return
	}
	o.replyArmed = false
	o.log.WithFields(logrus.Fields{"reason": o.replyReason, "trigger": reason}).Info("reply-interrupt window disarmed")
	o.replyReason = ""
}

// isArmedLocked reports whether the reply-interrupt window is active,
// auto-disarming it if the timeout has elapsed. Must be called with
// mu held.
func (o *Orchestrator) isArmedLocked() bool {
	if !o.replyArmed {
		return false
	}
	if time.Since(o.replyArmedAt) > o.cfg.ReplyInterruptTimeout {
		o.disarmLocked("armed window expired")
		return false
	}
	return true
}

// TryInterruptReply implements spec.md §4.F's reply-capture hook: if
// the event looks like the speaker's own TTS speak event, the
// interrupt window is armed, and the cooldown has elapsed, the
// device's current playback/announcement is stopped. namespace/name
// are the inner event envelope's header fields (case-insensitive).
func (o *Orchestrator) TryInterruptReply(ctx context.Context, namespace, name string) bool {
	namespaceLower := strings.ToLower(namespace)
	nameLower := strings.ToLower(name)
	isSpeakEvent := strings.Contains(namespaceLower, "speechsynthesizer") && strings.Contains(nameLower, "speak")
	if !isSpeakEvent {
		return false
	}

	o.mu.Lock()
	if !o.isArmedLocked() {
		o.mu.Unlock()
		return false
	}
	now := time.Now()
	if now.Sub(o.lastReplyStopAt) < o.cfg.ReplyInterruptCooldown {
		o.mu.Unlock()
		return false
	}
	o.lastReplyStopAt = now
	o.mu.Unlock()

	o.log.Info("reply-interrupt window hit: stopping device playback")
	if _, err := o.device.Stop(ctx); err != nil {
		o.log.WithError(err).Warn("reply-interrupt stop failed")
	}
	return true
}

// ---- device call helpers (always disarm first) ---------------------

func (o *Orchestrator) callSpeak(ctx context.Context, text string) {
	o.disarm("issuing speak")
	if _, err := o.device.Speak(ctx, text); err != nil {
		o.log.WithError(err).Warn("speak failed")
	}
}

func (o *Orchestrator) callAsk(ctx context.Context, text string) {
	o.disarm("issuing ask")
	if _, err := o.device.Ask(ctx, text); err != nil {
		o.log.WithError(err).Warn("ask failed")
	}
}

// callPlayURLLocked disarms and issues PlayURL while mu is already
// held, so that the auto-advance timer is armed before the caller
// releases the lock (spec.md §5).
func (o *Orchestrator) callPlayURLLocked(ctx context.Context, url string) {
	o.disarmLocked("issuing playURL")
	if _, err := o.device.PlayURL(ctx, url); err != nil {
		o.log.WithError(err).Warn("playURL failed")
	}
}

// Music plays an arbitrary URL directly, bypassing search — the CLI's
// "music <url>" command.
func (o *Orchestrator) Music(ctx context.Context, url string) {
	o.disarm("issuing direct music url")
	if _, err := o.device.PlayURL(ctx, url); err != nil {
		o.log.WithError(err).Warn("playURL failed")
	}
}

// Say speaks text directly — the CLI's "say <text>" command.
func (o *Orchestrator) Say(ctx context.Context, text string) {
	o.callSpeak(ctx, text)
}

// Ask routes text through the device's dialog pipeline — the CLI's
// "ask <text>" command.
func (o *Orchestrator) Ask(ctx context.Context, text string) {
	o.callAsk(ctx, text)
}

// ---- queue state machine -------------------------------------------

// clearQueueLocked cancels any pending timer, empties current/queue,
// and optionally stops the device, returning the number of entries
// cleared (current + queue). Must be called with mu held.
func (o *Orchestrator) clearQueueLocked(ctx context.Context, stopDevice bool) int {
	count := len(o.queue)
	if o.current != nil {
		count++
	}
	o.epoch++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.queue = nil
	o.current = nil

	if stopDevice {
		if _, err := o.device.Stop(ctx); err != nil {
			o.log.WithError(err).Warn("device stop failed")
		}
	}
	return count
}

func (o *Orchestrator) clearQueue(ctx context.Context, stopDevice bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clearQueueLocked(ctx, stopDevice)
}

// startSongLocked transitions into PLAYING for item: sets current,
// issues PlayURL, and arms the auto-advance timer for
// max(duration, 0.1s) + buffer. Must be called with mu held.
func (o *Orchestrator) startSongLocked(ctx context.Context, item SongItem, trigger string) {
	song := item
	o.current = &song
	o.epoch++
	epoch := o.epoch

	o.callPlayURLLocked(ctx, song.URL)

	o.log.WithFields(logrus.Fields{
		"trigger":  trigger,
		"position": song.Position,
		"name":     song.Name,
		"duration": song.DurationSec,
		"queued":   len(o.queue),
	}).Info("started song")

	wait := song.DurationSec
	if wait < 0.1 {
		wait = 0.1
	}
	waitDur := time.Duration(wait*float64(time.Second)) + o.cfg.TimerBuffer
	o.timer = time.AfterFunc(waitDur, func() { o.onTimerFire(ctx, epoch) })
}

// onTimerFire runs when a song's auto-advance timer elapses. If epoch
// no longer matches the orchestrator's current epoch, a clearQueue or
// newer startSong has already superseded this timer, and firing is a
// no-op — this is what makes self-cancellation and concurrent
// clearQueue races safe (spec.md §4.F/§5).
func (o *Orchestrator) onTimerFire(ctx context.Context, epoch uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if epoch != o.epoch {
		return
	}
	o.timer = nil

	if len(o.queue) == 0 {
		o.current = nil
		return
	}

	next := o.queue[0]
	o.queue = o.queue[1:]
	o.startSongLocked(ctx, next, "auto-advance")
}

// buildSongItems probes duration for each path and mints a gateway
// URL, dropping any path whose duration can't be determined
// (spec.md §4.A/§4.F).
func (o *Orchestrator) buildSongItems(ctx context.Context, paths []string) []SongItem {
	items := make([]SongItem, 0, len(paths))
	for i, p := range paths {
		dur, ok := o.probe.Probe(ctx, p)
		if !ok {
			o.log.WithField("path", p).Warn("dropping song: duration could not be probed")
			continue
		}
		items = append(items, SongItem{
			Position:    i + 1,
			Path:        p,
			Name:        filepath.Base(p),
			URL:         o.gateway.CreateFileURL(p),
			DurationSec: dur.Seconds(),
		})
	}
	return items
}

func (o *Orchestrator) hasDirs() bool {
	return len(o.dirs) > 0
}

// PlayByKeyword implements spec.md §4.F's playByKeyword: search,
// build playable items, replace the queue, and start the first one.
func (o *Orchestrator) PlayByKeyword(ctx context.Context, keyword string) {
	if !o.hasDirs() {
		o.log.WithError(ErrNoMusicDirs).Warn("refusing to search")
		o.callSpeak(ctx, "本地音乐目录还没有配置")
		return
	}

	needle := strings.ToLower(Normalize(keyword))
	snap := o.snapshot.Load()
	paths := Search(snap, needle, o.cfg.MaxResults)
	if len(paths) == 0 {
		o.callSpeak(ctx, fmt.Sprintf("没有找到包含%s的歌曲", keyword))
		return
	}

	items := o.buildSongItems(ctx, paths)
	if len(items) == 0 {
		o.callSpeak(ctx, "没有可播放的歌曲，无法解析音频时长")
		return
	}

	o.clearQueue(ctx, true)
	o.callSpeak(ctx, fmt.Sprintf("好的，找到%d首歌曲", len(paths)))

	o.mu.Lock()
	defer o.mu.Unlock()
	first := items[0]
	o.queue = items[1:]
	o.startSongLocked(ctx, first, fmt.Sprintf("keyword search: %s", keyword))
}

// PlayRandom implements spec.md §4.F's playRandom.
func (o *Orchestrator) PlayRandom(ctx context.Context) {
	if !o.hasDirs() {
		o.log.WithError(ErrNoMusicDirs).Warn("refusing to play random")
		o.callSpeak(ctx, "本地音乐目录还没有配置")
		return
	}

	snap := o.snapshot.Load()
	paths := RandomPick(snap, o.cfg.MaxResults)
	if len(paths) == 0 {
		o.callSpeak(ctx, "曲库为空，无法随机播放")
		return
	}

	items := o.buildSongItems(ctx, paths)
	if len(items) == 0 {
		o.callSpeak(ctx, "没有可播放的歌曲，无法解析音频时长")
		return
	}

	o.clearQueue(ctx, true)
	o.callSpeak(ctx, fmt.Sprintf("好的，随机播放%d首歌曲", len(paths)))

	o.mu.Lock()
	defer o.mu.Unlock()
	first := items[0]
	o.queue = items[1:]
	o.startSongLocked(ctx, first, "random play")
}

// Stop implements spec.md §4.F's stop: clear the queue and stop the
// device, returning the count of cleared entries.
func (o *Orchestrator) Stop(ctx context.Context) int {
	count := o.clearQueue(ctx, true)
	o.log.WithField("cleared", count).Info("stopped and cleared queue")
	return count
}

// ---- index refresh ---------------------------------------------------

// refreshOnce performs the actual filesystem walk + snapshot swap +
// persist, shared by RefreshAndReply and the periodic/watch loop.
// Caller must hold refreshMu.
func (o *Orchestrator) refreshOnce() (int, time.Duration) {
	start := time.Now()
	snap, total := o.idx.Refresh()
	o.snapshot.Store(snap)
	o.store.Save(snap.Songs)

	var totalBytes uint64
	for _, s := range snap.Songs {
		totalBytes += uint64(s.Size)
	}
	elapsed := time.Since(start)
	o.log.WithFields(logrus.Fields{
		"songs":        total,
		"library_size": humanize.Bytes(totalBytes),
		"elapsed":      elapsed,
	}).Info("index refresh finished")
	return total, elapsed
}

// RefreshAndReply implements spec.md §4.F's refreshAndReply: speaks
// progress/result, and declines (with a spoken message) rather than
// queueing if a refresh is already running.
func (o *Orchestrator) RefreshAndReply(ctx context.Context, reason string) {
	if !o.refreshMu.TryLock() {
		o.log.WithError(ErrRefreshInProgress).Info("declining refresh request")
		o.callSpeak(ctx, "曲库正在刷新，请稍候")
		return
	}
	defer o.refreshMu.Unlock()

	o.callSpeak(ctx, "正在刷新曲库，请稍候")
	total, elapsed := o.refreshOnce()
	o.callSpeak(ctx, fmt.Sprintf("曲库刷新完成，共%d首，耗时%.1f秒", total, elapsed.Seconds()))
}

// RunBackgroundRefresh combines spec.md §4.F's periodicRefresh with
// the fsnotify-triggered refresh enrichment (SPEC_FULL.md §5.A): both
// share the same "skip tick if refresh mutex held" rule and never
// speak (unlike RefreshAndReply, this path is silent — it is not a
// direct response to a user utterance). watchTriggers may be nil.
func (o *Orchestrator) RunBackgroundRefresh(ctx context.Context, interval time.Duration, watchTriggers <-chan struct{}) {
	var tickC <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			o.tryRefreshSilently("periodic refresh")
		case <-watchTriggers:
			o.tryRefreshSilently("filesystem watch")
		}
	}
}

func (o *Orchestrator) tryRefreshSilently(reason string) {
	if !o.refreshMu.TryLock() {
		o.log.WithField("reason", reason).Info("skipping refresh: already in progress")
		return
	}
	defer o.refreshMu.Unlock()
	o.log.WithField("reason", reason).Info("starting background refresh")
	o.refreshOnce()
}

// ---- ASR entry point --------------------------------------------------

// OnFinalASR implements spec.md §4.E/§4.F: classify the utterance,
// then either handle whitelist barge-in (disarm + schedule
// auto-resume), dispatch an exclusive command (stop/refresh/random/
// play, each arming the reply-interrupt window first), or — for any
// other recognized, non-command utterance — perform a full barge-in
// (clear the queue and stop the device).
func (o *Orchestrator) OnFinalASR(ctx context.Context, text string) {
	intent := Classify(text, o.sets)

	if intent.Whitelisted {
		o.disarm("user voice whitelist hit")
		o.log.WithField("text", text).Info("whitelisted utterance: playback left untouched")
		o.scheduleAutoResume(ctx)
	}

	switch intent.Kind {
	case IntentStop:
		o.arm("voice stop command")
		go o.Stop(ctx)
	case IntentRefresh:
		o.arm("voice refresh command")
		go o.RefreshAndReply(ctx, "voice refresh")
	case IntentRandom:
		o.arm("voice random play command")
		go o.PlayRandom(ctx)
	case IntentPlay:
		o.arm(fmt.Sprintf("voice search play: %s", intent.Keyword))
		go o.PlayByKeyword(ctx, intent.Keyword)
	default:
		// Whitelisted-but-otherwise-unmatched utterances are handled
		// entirely above: spec.md §4.F forbids clearing the queue for
		// those, so only a non-whitelisted, non-command utterance
		// reaches a full barge-in here.
		if intent.Whitelisted {
			return
		}
		cleared := o.clearQueue(ctx, true)
		o.disarm("full barge-in")
		o.log.WithFields(logrus.Fields{"text": text, "cleared": cleared}).Info("unrecognized utterance: full barge-in")
	}
}

// scheduleAutoResume implements spec.md §4.F's whitelist auto-resume:
// after autoResumeDelay, if no newer resume was scheduled and a song
// is still current, cancel its timer and re-issue PlayURL so the
// assistant's spoken answer doesn't leave music ducked.
func (o *Orchestrator) scheduleAutoResume(ctx context.Context) {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return
	}
	o.whitelistSeq++
	seq := o.whitelistSeq
	o.mu.Unlock()

	go o.autoResumeAfterWhitelist(ctx, seq)
}

func (o *Orchestrator) autoResumeAfterWhitelist(ctx context.Context, seq uint64) {
	select {
	case <-time.After(o.cfg.AutoResumeDelay):
	case <-ctx.Done():
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.whitelistSeq || o.current == nil {
		return
	}
	song := *o.current
	o.log.WithField("name", song.Name).Info("resuming after whitelisted interruption")
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.startSongLocked(ctx, song, "whitelist auto-resume")
}
