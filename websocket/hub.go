package websocket

import (
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBroadcastBuffer = 1024
	defaultObserverBuffer  = 256
)

// Subscription is one observer's private delivery channel. C is closed when
// the observer is unsubscribed, evicted, or the hub shuts down.
type Subscription struct {
	ID string
	C  <-chan models.WSMessage

	send chan models.WSMessage
}

// Hub fans accepted reports out to every subscribed observer. Each observer
// has its own buffered channel; one that cannot keep up is evicted.
type Hub struct {
	// Registered observers, owned by the Run goroutine
	observers map[*Subscription]bool

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan models.WSMessage

	observerBuffer int

	stats HubStats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	metricsTicker *time.Ticker
	sinks         sync.WaitGroup
}

type HubStats struct {
	ActiveObservers   atomic.Int64
	TotalConnections  atomic.Int64
	MessagesPublished atomic.Int64
	MessagesDropped   atomic.Int64
	ObserversEvicted  atomic.Int64
	StartTime         time.Time
}

func NewHub(broadcastBuffer, observerBuffer int) *Hub {
	if broadcastBuffer <= 0 {
		broadcastBuffer = defaultBroadcastBuffer
	}
	if observerBuffer <= 0 {
		observerBuffer = defaultObserverBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		observers:      make(map[*Subscription]bool),
		register:       make(chan *Subscription),
		unregister:     make(chan *Subscription),
		broadcast:      make(chan models.WSMessage, broadcastBuffer),
		observerBuffer: observerBuffer,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	hub.stats.StartTime = time.Now()
	hub.metricsTicker = time.NewTicker(1 * time.Minute)

	return hub
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub starting...")
	defer close(h.done)

	for {
		select {
		case sub := <-h.register:
			h.registerObserver(sub)

		case sub := <-h.unregister:
			h.removeObserver(sub)

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-h.metricsTicker.C:
			h.logMetrics()

		case <-h.ctx.Done():
			for sub := range h.observers {
				h.removeObserver(sub)
			}
			logrus.Info("WebSocket Hub shutting down...")
			return
		}
	}
}

// Subscribe registers a new observer. It receives only messages published
// after it joined.
func (h *Hub) Subscribe(id string) *Subscription {
	send := make(chan models.WSMessage, h.observerBuffer)
	sub := &Subscription{ID: id, C: send, send: send}

	select {
	case h.register <- sub:
	case <-h.ctx.Done():
		close(send)
	}
	return sub
}

// Unsubscribe is safe to call more than once and after eviction.
func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.ctx.Done():
	}
}

// Publish queues an accepted report for every observer. It never blocks;
// when the hub is saturated the report is dropped.
func (h *Hub) Publish(report models.BroadcastReport) {
	message := models.WSMessage{
		Type:      models.WSTypeNewAccident,
		Data:      report,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
		h.stats.MessagesPublished.Add(1)
	default:
		h.stats.MessagesDropped.Add(1)
		logrus.WithField("report_id", report.ID.Hex()).Warn("Broadcast channel full, dropping accident report")
	}
}

func (h *Hub) registerObserver(sub *Subscription) {
	h.observers[sub] = true
	h.stats.ActiveObservers.Add(1)
	h.stats.TotalConnections.Add(1)

	logrus.Infof("Observer registered: %s (Total: %d)", sub.ID, len(h.observers))
}

func (h *Hub) removeObserver(sub *Subscription) {
	if _, ok := h.observers[sub]; !ok {
		return
	}
	delete(h.observers, sub)
	close(sub.send)
	h.stats.ActiveObservers.Add(-1)

	logrus.Infof("Observer unregistered: %s (Total: %d)", sub.ID, len(h.observers))
}

func (h *Hub) fanOut(message models.WSMessage) {
	for sub := range h.observers {
		select {
		case sub.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"observer": sub.ID,
				"code":     utils.ErrCodeBroadcastFailure,
			}).Warn("Observer send buffer full, evicting")
			h.stats.ObserversEvicted.Add(1)
			h.removeObserver(sub)
		}
	}
}

func (h *Hub) logMetrics() {
	stats := h.GetStats()
	logrus.WithFields(logrus.Fields{
		"observers": stats.ActiveObservers,
		"published": stats.MessagesPublished,
		"dropped":   stats.MessagesDropped,
		"evicted":   stats.ObserversEvicted,
	}).Debug("WebSocket Hub metrics")
}

func (h *Hub) GetStats() models.WSHubStats {
	return models.WSHubStats{
		ActiveObservers:   int(h.stats.ActiveObservers.Load()),
		TotalConnections:  h.stats.TotalConnections.Load(),
		MessagesPublished: h.stats.MessagesPublished.Load(),
		MessagesDropped:   h.stats.MessagesDropped.Load(),
		ObserversEvicted:  h.stats.ObserversEvicted.Load(),
		Uptime:            time.Since(h.stats.StartTime),
	}
}

// Shutdown stops the hub, closes every subscription and waits for sinks to drain.
func (h *Hub) Shutdown() {
	logrus.Info("Shutting down WebSocket Hub...")

	h.metricsTicker.Stop()
	h.cancel()
	<-h.done
	h.sinks.Wait()

	logrus.Info("WebSocket Hub shutdown complete")
}
