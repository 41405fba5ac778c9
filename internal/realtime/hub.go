package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/metrics"
)

// Intervals sets the per-connection cadence of each message type.
type Intervals struct {
	Heartbeat  time.Duration
	Energy     time.Duration
	Solar      time.Duration
	Greenhouse time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Heartbeat:  30 * time.Second,
		Energy:     60 * time.Second,
		Solar:      60 * time.Second,
		Greenhouse: 120 * time.Second,
	}
}

func (iv Intervals) withDefaults() Intervals {
	d := DefaultIntervals()
	if iv.Heartbeat <= 0 {
		iv.Heartbeat = d.Heartbeat
	}
	if iv.Energy <= 0 {
		iv.Energy = d.Energy
	}
	if iv.Solar <= 0 {
		iv.Solar = d.Solar
	}
	if iv.Greenhouse <= 0 {
		iv.Greenhouse = d.Greenhouse
	}
	return iv
}

// Hub serves realtime streams. Each connection has its own timers and mailbox.
type Hub struct {
	snap      *Snapshotter
	intervals Intervals

	mu     sync.Mutex
	conns  map[string]context.CancelFunc
	closed bool
}

func NewHub(snap *Snapshotter, iv Intervals) *Hub {
	return &Hub{snap: snap, intervals: iv.withDefaults(), conns: make(map[string]context.CancelFunc)}
}

func (h *Hub) Snapshotter() *Snapshotter { return h.snap }

// Connections returns the number of open streams.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close ends every open stream. Later Serve calls return immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, cancel := range h.conns {
		cancel()
	}
}

func (h *Hub) register(cancel context.CancelFunc) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", false
	}
	id := uuid.NewString()
	h.conns[id] = cancel
	metrics.RealtimeConnections.Inc()
	return id, true
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; ok {
		delete(h.conns, id)
		metrics.RealtimeConnections.Dec()
	}
}

// Serve streams to w until ctx is done, the hub is closed, or a write fails.
// It returns nil on cancellation and the write error otherwise.
func (h *Hub) Serve(ctx context.Context, w FrameWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id, ok := h.register(cancel)
	if !ok {
		return nil
	}
	defer h.unregister(id)

	c := &conn{
		id:   id,
		snap: h.snap,
		mb: newMailbox(func(t MessageType) {
			metrics.RealtimeFramesDropped.WithLabelValues(string(t)).Inc()
		}),
	}
	log.Info().Str("conn", id).Msg("realtime client connected")

	for _, t := range []MessageType{EnergyUpdate, SolarUpdate, GreenhouseUpdate} {
		c.refresh(ctx, t)
	}
	c.every(ctx, h.intervals.Heartbeat, func() { c.mb.put(h.snap.Heartbeat()) })
	c.every(ctx, h.intervals.Energy, func() { c.refresh(ctx, EnergyUpdate) })
	c.every(ctx, h.intervals.Solar, func() { c.refresh(ctx, SolarUpdate) })
	c.every(ctx, h.intervals.Greenhouse, func() { c.refresh(ctx, GreenhouseUpdate) })

	err := c.pump(ctx, w)
	cancel()
	c.wg.Wait()

	if err != nil {
		log.Info().Str("conn", id).Err(err).Msg("realtime client disconnected")
	} else {
		log.Info().Str("conn", id).Msg("realtime stream closed")
	}
	return err
}

type conn struct {
	id       string
	snap     *Snapshotter
	mb       *mailbox
	wg       sync.WaitGroup
	inflight [4]atomic.Bool
}

func slot(t MessageType) int {
	switch t {
	case EnergyUpdate:
		return 1
	case SolarUpdate:
		return 2
	case GreenhouseUpdate:
		return 3
	}
	return 0
}

// refresh queries a snapshot in the background unless the previous query of that type is still running.
func (c *conn) refresh(ctx context.Context, t MessageType) {
	flag := &c.inflight[slot(t)]
	if !flag.CompareAndSwap(false, true) {
		metrics.RealtimeTicksSkipped.WithLabelValues(string(t)).Inc()
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer flag.Store(false)
		msg := c.snap.Take(ctx, t)
		if ctx.Err() != nil {
			return
		}
		c.mb.put(msg)
	}()
}

func (c *conn) every(ctx context.Context, d time.Duration, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (c *conn) pump(ctx context.Context, w FrameWriter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.mb.ready:
			for {
				msg, ok := c.mb.take()
				if !ok {
					break
				}
				if err := w.WriteFrame(msg); err != nil {
					return err
				}
				metrics.RealtimeFramesSent.WithLabelValues(string(msg.Type)).Inc()
			}
		}
	}
}
