// Package sensor holds the double-buffered head-posture snapshot fed to
// effect chains via EFFECT_CMD_SET_IMU (spec.md §4.2). Readers never block
// writers and vice versa: Update swaps an atomic pointer rather than
// locking, the same shape src/tq.go uses for its position-report cache.
package sensor

import (
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"

	"github.com/ohaudio/audiofx/internal/effect"
)

// Posture is a head-tracking sample: the head's forward-facing direction as
// a unit vector, valid reporting whether the underlying sensor currently
// has a fix.
type Posture struct {
	Valid   bool
	Forward r3.Vector
}

// Identity is the posture corresponding to no head rotation, head facing
// the device's reference forward axis.
var Identity = Posture{Valid: true, Forward: r3.Vector{X: 1, Y: 0, Z: 0}}

// ToHeadPosture converts to the wire shape effect.Handle.Command expects
// for EFFECT_CMD_SET_IMU.
func (p Posture) ToHeadPosture() effect.HeadPosture {
	valid := int32(0)
	if p.Valid {
		valid = 1
	}
	return effect.HeadPosture{Valid: valid, Orientation: [3]float64{p.Forward.X, p.Forward.Y, p.Forward.Z}}
}

// Tracker publishes the latest head posture snapshot to any number of
// concurrent readers. The zero value is ready to use and reports Identity
// until the first Update.
type Tracker struct {
	current atomic.Pointer[Posture]
}

// NewTracker returns a Tracker seeded with Identity.
func NewTracker() *Tracker {
	t := &Tracker{}
	id := Identity
	t.current.Store(&id)
	return t
}

// Update publishes a new posture snapshot. Safe to call from any goroutine;
// readers observe either the old or the new snapshot, never a torn one.
func (t *Tracker) Update(p Posture) {
	cp := p
	t.current.Store(&cp)
}

// Snapshot returns the most recently published posture.
func (t *Tracker) Snapshot() Posture {
	if p := t.current.Load(); p != nil {
		return *p
	}
	return Identity
}

// Subscription is a revocable handle returned by Subscribe.
type Subscription struct {
	cancel func()
}

// Cancel stops delivery to the subscriber's channel and closes it.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe starts a goroutine that polls the tracker at the given period
// and delivers every distinct posture to ch. The returned Subscription's
// Cancel stops the goroutine and closes ch exactly once.
func (t *Tracker) Subscribe(ch chan<- Posture, pollEvery func() <-chan struct{}) *Subscription {
	done := make(chan struct{})
	var closeOnce sync.Once
	sub := &Subscription{cancel: func() {
		closeOnce.Do(func() { close(done) })
	}}

	go func() {
		defer close(ch)
		last := t.Snapshot()
		ch <- last
		tick := pollEvery()
		for {
			select {
			case <-done:
				return
			case <-tick:
				cur := t.Snapshot()
				if cur != last {
					last = cur
					select {
					case ch <- cur:
					case <-done:
						return
					}
				}
			}
		}
	}()

	return sub
}
