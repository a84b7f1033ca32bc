// Package stream produces the real-time metric frames pushed to WebSocket
// subscribers: one sampling loop per subscription over the shared usage
// collector.
package stream

import "github.com/fleetglass/fleetglass-backend/internal/models"

// Ring is a fixed-capacity FIFO buffer of metric frames: the rolling window
// one subscriber retains in memory. Full pushes evict the oldest frame.
// Not safe for concurrent use; the owning subscriber guards access.
type Ring struct {
	frames []models.MetricFrame
	start  int
	count  int
}

// NewRing returns a ring holding at most capacity frames. Capacity must be
// positive.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{frames: make([]models.MetricFrame, capacity)}
}

// Push appends a frame, evicting the oldest when the ring is full.
func (r *Ring) Push(f models.MetricFrame) {
	if r.count < len(r.frames) {
		r.frames[(r.start+r.count)%len(r.frames)] = f
		r.count++
		return
	}
	r.frames[r.start] = f
	r.start = (r.start + 1) % len(r.frames)
}

// Frames returns the buffered frames oldest-first.
func (r *Ring) Frames() []models.MetricFrame {
	out := make([]models.MetricFrame, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.frames[(r.start+i)%len(r.frames)])
	}
	return out
}

// Len reports how many frames are buffered.
func (r *Ring) Len() int { return r.count }

// Cap reports the fixed capacity.
func (r *Ring) Cap() int { return len(r.frames) }
