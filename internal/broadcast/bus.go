package broadcast

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nfrund/hexarena/internal/pubsub"
	"github.com/nfrund/hexarena/internal/topics"
)

// BusObserver republishes a battle's events on the message bus.
type BusObserver struct {
	battleID string
	pub      pubsub.Publisher
}

// NewBusObserver returns an observer that publishes to topics.BattleEvents.
func NewBusObserver(battleID string, pub pubsub.Publisher) *BusObserver {
	return &BusObserver{battleID: battleID, pub: pub}
}

// ID implements Observer.
func (o *BusObserver) ID() string { return "bus:" + o.battleID }

// Send implements Observer.
func (o *BusObserver) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return o.pub.Publish(ctx, pubsub.Message{
		Topic:    topics.BattleEvents.Name,
		BattleID: ev.BattleID,
		Payload:  data,
		Metadata: map[string]string{
			"type": string(ev.Type),
			"seq":  strconv.FormatUint(ev.Seq, 10),
		},
	})
}
