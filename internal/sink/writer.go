package sink

import (
	"github.com/ohaudio/audiofx/internal/hal"
	"github.com/ohaudio/audiofx/internal/ratelog"
)

// Writer is the per-branch HDI writer thread (spec.md §4.6): it owns one
// HAL adapter and drains KindRender messages off its queue, tolerating
// partial writes by looping until the device has consumed the whole
// memchunk, a write reports failure, or a write reports the impossible
// (written > requested, logged and dropped rather than looped on).
type Writer struct {
	name    string
	adapter hal.Adapter
	queue   *Queue
	logger  *ratelog.Logger
}

// NewWriter returns a Writer draining queue into adapter.
func NewWriter(name string, adapter hal.Adapter, queue *Queue, logger *ratelog.Logger) *Writer {
	return &Writer{name: name, adapter: adapter, queue: queue, logger: logger}
}

// Run is the writer thread body; call it in its own goroutine. It returns
// once it has observed KindQuit and drained the remaining queue.
func (w *Writer) Run() {
	for msg := range w.queue.C() {
		switch msg.Kind {
		case KindQuit:
			w.queue.Drain()
			return
		case KindRender:
			w.render(msg.Render)
		}
	}
}

func (w *Writer) render(buf []byte) {
	for len(buf) > 0 {
		written, err := w.adapter.RenderFrame(buf)
		if err != nil {
			if w.logger != nil {
				w.logger.Error(w.name, "render_error", "hdi render frame failed", "err", err)
			}
			return
		}
		if written == 0 {
			if w.logger != nil {
				w.logger.Error(w.name, "render_stall", "hdi render frame wrote zero bytes")
			}
			return
		}
		if written > len(buf) {
			if w.logger != nil {
				w.logger.Error(w.name, "render_overrun", "hdi reported writing more than requested, dropping", "written", written, "requested", len(buf))
			}
			return
		}
		buf = buf[written:]
	}
}
