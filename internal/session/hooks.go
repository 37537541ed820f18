package session

import (
	"context"

	"github.com/nfrund/hexarena/internal/pubsub"
	"github.com/nfrund/hexarena/internal/topics"
)

var completedEvent = pubsub.NewEvent[Completion](topics.BattleCompleted)

// PublishCompletion returns a hook that announces finished battles on the
// bus for settlement and ratings consumers.
func PublishCompletion(pub pubsub.Publisher) CompletionHook {
	return func(ctx context.Context, c Completion) error {
		return pubsub.Publish(ctx, pub, completedEvent, c.BattleID, c)
	}
}
