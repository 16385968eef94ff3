package render

import (
	"fmt"

	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// HandlePush decodes one history push and admits it to the queue. It is
// the glue between a transport client and the queue; materialize pushes are
// the presentation layer's business and are rejected here.
func (q *SyncQueue) HandlePush(env wire.Envelope) error {
	switch env.Channel {
	case wire.ChannelHistoryAdd:
		var msg wire.AddRecord
		if err := env.Decode(&msg); err != nil {
			return err
		}
		q.ApplyAdd(msg.Record)
	case wire.ChannelHistoryRemove:
		var msg wire.RemoveRecord
		if err := env.Decode(&msg); err != nil {
			return err
		}
		q.ApplyRemove(msg.ID, msg.Animate)
	case wire.ChannelHistoryFlush:
		q.ApplyFlush()
	case wire.ChannelHistorySync:
		var msg wire.SyncHistory
		if err := env.Decode(&msg); err != nil {
			return err
		}
		q.ApplySync(msg.Records)
	default:
		return fmt.Errorf("render: unexpected channel %s", env.Channel)
	}
	return nil
}

// Bind registers the queue's handlers on a transport client that routes by
// channel, such as the websocket client.
func Bind(q *SyncQueue, register func(channel string, handler func(env wire.Envelope))) {
	forward := func(env wire.Envelope) {
		if err := q.HandlePush(env); err != nil {
			logger.WarnCF("render", "Dropping malformed push", map[string]any{
				"channel": env.Channel,
				"error":   err.Error(),
			})
		}
	}
	register(wire.ChannelHistoryAdd, forward)
	register(wire.ChannelHistoryRemove, forward)
	register(wire.ChannelHistoryFlush, forward)
	register(wire.ChannelHistorySync, forward)
}
