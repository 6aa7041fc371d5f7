package websocket

import (
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const sinkPublishTimeout = 5 * time.Second

// Sink is a non-WebSocket observer, such as a message broker publisher.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report models.BroadcastReport) error
}

// AddSink subscribes sink as an observer with its own goroutine. A failing
// sink only logs; a slow one is evicted like any other observer.
func (h *Hub) AddSink(sink Sink) {
	sub := h.Subscribe("sink:" + sink.Name())

	h.sinks.Add(1)
	go func() {
		defer h.sinks.Done()
		for message := range sub.C {
			report, ok := message.Data.(models.BroadcastReport)
			if !ok {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), sinkPublishTimeout)
			if err := sink.Publish(ctx, report); err != nil {
				logrus.WithFields(logrus.Fields{
					"sink":      sink.Name(),
					"report_id": report.ID.Hex(),
					"code":      utils.ErrCodeBroadcastFailure,
				}).WithError(err).Warn("Sink failed to publish report")
			}
			cancel()
		}
		logrus.Infof("Sink %s stopped", sink.Name())
	}()
}
