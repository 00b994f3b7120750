package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// Event is a rendered record waiting for delivery.
type Event struct {
	Kind       ports.EventKind
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// Queue is the in-memory delivery queue. It knows nothing about what the
// records mean beyond their kind.
type Queue struct {
	cfg     Config
	client  *retryablehttp.Client
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	events []Event
	timer  *time.Timer
	closed bool

	// in-flight deliveries; idle is closed when inflight drops to zero
	inflight int
	idle     chan struct{}
}

var _ ports.Sink = (*Queue)(nil)

// New creates a queue delivering to cfg.BaseURL.
func New(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	q.client = newRetryClient(cfg, q.metrics)
	return q
}

// Enqueue renders payload to JSON and buffers it. It never blocks on the
// network: reaching MaxQueueSize dispatches an asynchronous flush, otherwise
// a flush is scheduled after FlushInterval if none is pending.
func (q *Queue) Enqueue(kind ports.EventKind, payload any) {
	if q.cfg.Disabled {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		q.logger.Warn("dropping unencodable event",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		q.metrics.dropped(DropEncode, 1)
		return
	}
	if len(raw) > MaxEventSize {
		q.logger.Warn("dropping event over size limit",
			slog.String("kind", string(kind)),
			slog.Int("bytes", len(raw)),
			slog.Int("limit", MaxEventSize),
		)
		q.metrics.dropped(DropOversize, 1)
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Debug("dropping event enqueued after close", slog.String("kind", string(kind)))
		q.metrics.dropped(DropClosed, 1)
		return
	}

	q.events = append(q.events, Event{Kind: kind, Payload: raw, EnqueuedAt: time.Now()})
	n := len(q.events)
	q.metrics.enqueued(string(kind))

	var batch []Event
	if n >= q.cfg.MaxQueueSize {
		batch = q.takeLocked()
		q.beginLocked()
	} else {
		if n == q.cfg.MaxQueueSize*8/10 {
			q.logger.Warn("event queue nearing capacity",
				slog.Int("queued", n),
				slog.Int("max", q.cfg.MaxQueueSize),
			)
		}
		if q.timer == nil {
			q.armLocked()
		}
	}
	q.metrics.depth(len(q.events))
	q.mu.Unlock()

	if batch != nil {
		go func() {
			defer q.end()
			q.deliver(context.Background(), batch)
		}()
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Flush delivers everything buffered and waits for all in-flight sends.
// Delivery failures are logged, not returned; the error is non-nil only if
// ctx ends first, in which case the sends continue in the background.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	batch := q.takeLocked()
	if len(batch) > 0 {
		q.beginLocked()
	}
	q.metrics.depth(0)
	q.mu.Unlock()

	if len(batch) > 0 {
		go func() {
			defer q.end()
			q.deliver(context.WithoutCancel(ctx), batch)
		}()
	}
	return q.wait(ctx)
}

// Close stops accepting events, flushes what is buffered and waits for
// in-flight sends, bounded by ctx. Calling Close again only waits.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	var batch []Event
	if !q.closed {
		q.closed = true
		batch = q.takeLocked()
		if len(batch) > 0 {
			q.beginLocked()
		}
	}
	q.metrics.depth(0)
	q.mu.Unlock()

	if len(batch) > 0 {
		go func() {
			defer q.end()
			q.deliver(context.WithoutCancel(ctx), batch)
		}()
	}

	err := q.wait(ctx)
	q.client.HTTPClient.CloseIdleConnections()
	return err
}

// armLocked schedules a flush after FlushInterval. The callback holds its
// own timer so a stale firing can recognize it has been superseded.
func (q *Queue) armLocked() {
	var t *time.Timer
	t = time.AfterFunc(q.cfg.FlushInterval, func() { q.flushFromTimer(t) })
	q.timer = t
}

// flushFromTimer flushes on behalf of t. A callback that fired while a
// Flush stopped t, and possibly after a new timer was armed, does nothing.
func (q *Queue) flushFromTimer(t *time.Timer) {
	q.mu.Lock()
	if q.timer != t {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	batch := q.takeLocked()
	if len(batch) > 0 {
		q.beginLocked()
	}
	q.metrics.depth(0)
	q.mu.Unlock()

	if len(batch) > 0 {
		defer q.end()
		q.deliver(context.Background(), batch)
	}
}

// takeLocked snapshots and clears the queue and cancels any pending timer.
func (q *Queue) takeLocked() []Event {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	batch := q.events
	q.events = nil
	return batch
}

func (q *Queue) beginLocked() {
	if q.inflight == 0 {
		q.idle = make(chan struct{})
	}
	q.inflight++
}

func (q *Queue) end() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	if q.inflight == 0 {
		close(q.idle)
	}
}

func (q *Queue) wait(ctx context.Context) error {
	q.mu.Lock()
	if q.inflight == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver groups a snapshot by endpoint and sends the groups concurrently,
// returning once every send has settled. Identify records go one per request.
func (q *Queue) deliver(ctx context.Context, events []Event) {
	var tracks, signals []json.RawMessage
	var identifies []json.RawMessage

	for _, e := range events {
		switch e.Kind {
		case ports.EventTrace, ports.EventInteraction:
			tracks = append(tracks, e.Payload)
		case ports.EventFeedback:
			signals = append(signals, e.Payload)
		case ports.EventIdentify:
			identifies = append(identifies, e.Payload)
		default:
			q.logger.Warn("dropping event with unknown kind", slog.String("kind", string(e.Kind)))
			q.metrics.dropped(DropUnrouted, 1)
		}
	}

	var wg sync.WaitGroup
	send := func(endpoint string, body []byte, items int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.sendBatch(ctx, endpoint, body, items)
		}()
	}

	if len(tracks) > 0 {
		send(EventsPath, encodeArray(tracks), len(tracks))
	}
	if len(signals) > 0 {
		send(SignalsPath, encodeArray(signals), len(signals))
	}
	for _, rec := range identifies {
		send(IdentifyPath, rec, 1)
	}

	wg.Wait()
}

func encodeArray(items []json.RawMessage) []byte {
	size := 2 + len(items)
	for _, item := range items {
		size += len(item)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, '[')
	for i, item := range items {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, item...)
	}
	return append(buf, ']')
}
