package playback

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrNoSource = errors.New("no source")

// HeadlessElement is an Element without output. Its position advances with
// wall time while playing, and a "#t=" fragment on the source sets the start
// offset the way a browser media element does.
type HeadlessElement struct {
	mu      sync.Mutex
	now     func() time.Time
	src     string
	playing bool
	base    float64
	baseAt  time.Time
	volume  float64
	loads   int
	playErr []error
}

func NewHeadlessElement(now func() time.Time) *HeadlessElement {
	if now == nil {
		now = time.Now
	}
	return &HeadlessElement{now: now, volume: 1}
}

var _ Element = (*HeadlessElement)(nil)

func (e *HeadlessElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

func (e *HeadlessElement) currentLocked() float64 {
	if !e.playing {
		return e.base
	}
	return e.base + e.now().Sub(e.baseAt).Seconds()
}

func (e *HeadlessElement) SetCurrentTime(sec float64) {
	e.mu.Lock()
	e.base = sec
	e.baseAt = e.now()
	e.mu.Unlock()
}

func (e *HeadlessElement) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

func (e *HeadlessElement) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *HeadlessElement) SetSource(src string) {
	e.mu.Lock()
	e.src = src
	e.mu.Unlock()
}

func (e *HeadlessElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *HeadlessElement) Load() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	e.playing = false
	e.base = fragmentOffset(e.src)
	e.baseAt = e.now()
}

func (e *HeadlessElement) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

// FailNextPlays queues errors returned by the next Play calls, in order.
func (e *HeadlessElement) FailNextPlays(errs ...error) {
	e.mu.Lock()
	e.playErr = append(e.playErr, errs...)
	e.mu.Unlock()
}

func (e *HeadlessElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.playErr) > 0 {
		err := e.playErr[0]
		e.playErr = e.playErr[1:]
		return err
	}
	if e.src == "" {
		return ErrNoSource
	}
	if !e.playing {
		e.playing = true
		e.baseAt = e.now()
	}
	return nil
}

func (e *HeadlessElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.base = e.currentLocked()
		e.playing = false
	}
}

func (e *HeadlessElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func fragmentOffset(src string) float64 {
	i := strings.LastIndex(src, "#t=")
	if i < 0 {
		return 0
	}
	v, err := strconv.ParseFloat(src[i+3:], 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
