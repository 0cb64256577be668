package playback

import (
	"context"
	"math"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxelzone.app/internal/protocol"
)

// Backoff spaces out consecutive reloads. The zero value reloads on every
// retry tick. A non-positive Max caps the delay at ten times Initial.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) delay(failures int) time.Duration {
	if b.Initial <= 0 || failures <= 0 {
		return 0
	}
	limit := b.Max
	if limit <= 0 {
		limit = 10 * b.Initial
	}
	d := b.Initial
	for i := 1; i < failures && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

type Options struct {
	RetryPeriod     time.Duration
	ReseekThreshold time.Duration
	Backoff         Backoff
	Logger          *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) normalize() {
	if o.RetryPeriod <= 0 {
		o.RetryPeriod = 200 * time.Millisecond
	}
	if o.ReseekThreshold <= 0 {
		o.ReseekThreshold = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// audioExts are sources that carry no picture.
var audioExts = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
}

// Clock keeps a media element aligned to the server's play position. The
// logical position is derived from the instant the item started; the
// element's own clock is only ever corrected toward it.
type Clock struct {
	el   Element
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	item      *protocol.QueueItem
	start     time.Time
	retry     bool
	failures  int
	notBefore time.Time
	closed    bool
	onReload  []func(src string)

	stop      chan struct{}
	closeOnce sync.Once
}

func NewClock(el Element, opts Options) *Clock {
	opts.normalize()
	return &Clock{
		el:    el,
		opts:  opts,
		log:   opts.Logger,
		start: opts.Now(),
		stop:  make(chan struct{}),
	}
}

// OnReload registers fn to be told the source of every reload.
func (c *Clock) OnReload(fn func(src string)) {
	c.mu.Lock()
	c.onReload = append(c.onReload, fn)
	c.mu.Unlock()
}

// Run drives the retry loop until ctx ends or Close is called.
func (c *Clock) Run(ctx context.Context) error {
	t := time.NewTicker(c.opts.RetryPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-t.C:
			c.tick()
		}
	}
}

// Close stops the retry loop. Afterwards the element is never touched again.
func (c *Clock) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
	})
}

// SetPlaying records that item is at offset seek now. A different item is
// loaded from scratch; the same item is only re-seeked.
func (c *Clock) SetPlaying(item protocol.QueueItem, seek time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.start = c.opts.Now().Add(-seek)
	var src string
	if c.item == nil || !c.item.SameAs(item) {
		it := item
		c.item = &it
		c.failures = 0
		c.notBefore = time.Time{}
		src = c.reloadLocked()
	} else {
		c.reseekLocked()
	}
	c.mu.Unlock()
	c.notifyReload(src)
}

// StopPlaying forgets the current item and detaches the source.
func (c *Clock) StopPlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.item = nil
	c.start = c.opts.Now()
	c.failures = 0
	if c.closed {
		return
	}
	c.el.Pause()
	c.el.SetSource("")
	c.el.Load()
}

func (c *Clock) ForceRetry() {
	c.mu.Lock()
	c.retry = true
	c.mu.Unlock()
}

// HandleLoadedData is called by the element once media data is available.
func (c *Clock) HandleLoadedData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.notBefore = time.Time{}
	if c.closed {
		return
	}
	c.reseekLocked()
}

func (c *Clock) HandleError() { c.ForceRetry() }

func (c *Clock) HandleEnded() { c.ForceRetry() }

func (c *Clock) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.el.SetVolume(v)
}

func (c *Clock) PlayingItem() (protocol.QueueItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.item == nil {
		return protocol.QueueItem{}, false
	}
	return *c.item, true
}

func (c *Clock) HasItem() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item != nil
}

// HasVideo is false without an item or for audio-only sources.
func (c *Clock) HasVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item != nil && !IsAudioSource(c.item.Media.Source)
}

func (c *Clock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// Remaining is the declared duration minus elapsed, kept within
// [0, duration].
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.durationLocked()
	r := d - c.elapsedLocked()
	if r < 0 {
		return 0
	}
	if r > d {
		return d
	}
	return r
}

// RetryPending reports whether a reload is queued for the next tick.
func (c *Clock) RetryPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry
}

func (c *Clock) tick() {
	c.mu.Lock()
	if !c.retry || c.closed {
		c.mu.Unlock()
		return
	}
	if now := c.opts.Now(); now.Before(c.notBefore) {
		c.mu.Unlock()
		return
	}
	src := c.reloadLocked()
	if src != "" && c.opts.Backoff.Initial > 0 {
		c.failures++
		d := c.opts.Backoff.delay(c.failures)
		c.notBefore = c.opts.Now().Add(d)
		c.log.Debug("reload backoff", zap.Int("failures", c.failures), zap.Duration("delay", d))
	}
	c.mu.Unlock()
	c.notifyReload(src)
}

func (c *Clock) durationLocked() time.Duration {
	if c.item == nil {
		return 0
	}
	return time.Duration(c.item.Media.Duration) * time.Millisecond
}

func (c *Clock) elapsedLocked() time.Duration {
	if c.item == nil {
		return 0
	}
	return c.opts.Now().Sub(c.start)
}

func (c *Clock) reseekLocked() {
	target := c.elapsedLocked().Seconds()
	drift := math.Abs(c.el.CurrentTime() - target)
	if drift > c.opts.ReseekThreshold.Seconds() {
		c.el.SetCurrentTime(target)
	}
}

// reloadLocked clears the retry flag and restarts the element at the logical
// position. It returns the new source, or "" when there is nothing to play.
func (c *Clock) reloadLocked() string {
	c.retry = false
	if c.item == nil || c.closed {
		return ""
	}
	src := ReloadSource(c.item.Media.Source, c.elapsedLocked())
	c.el.Pause()
	c.el.SetSource(src)
	c.el.Load()
	c.reseekLocked()
	if err := c.el.Play(); err != nil {
		c.log.Debug("play refused", zap.String("source", c.item.Media.Source), zap.Error(err))
		c.retry = true
	}
	return src
}

func (c *Clock) notifyReload(src string) {
	if src == "" {
		return
	}
	c.log.Debug("reload", zap.String("source", src))
	c.mu.Lock()
	fns := c.onReload
	c.mu.Unlock()
	for _, fn := range fns {
		fn(src)
	}
}

// ReloadSource appends a media fragment that starts playback at elapsed.
func ReloadSource(source string, elapsed time.Duration) string {
	return source + "#t=" + strconv.FormatFloat(elapsed.Seconds(), 'f', -1, 64)
}

// IsAudioSource reports whether a locator names an audio-only file.
func IsAudioSource(source string) bool {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return audioExts[strings.ToLower(path.Ext(source))]
}
