package view

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/riskview/internal/domain"
)

// Discarder is anything holding per-session view state.
type Discarder interface {
	Discard()
}

// DiscardOnSessionEnd drops the state of every view when the session of
// scope ends, the same as navigating away from the views.
func DiscardOnSessionEnd(ctx context.Context, eventBus domain.EventBus, scope string, views ...Discarder) (domain.Subscription, error) {
	return eventBus.Subscribe(ctx, scope, domain.TopicSessionEnded, func(ctx context.Context, msg *domain.Message) error {
		for _, v := range views {
			v.Discard()
		}
		slog.Info("views discarded on session end", "scope", scope, "views", len(views))
		return nil
	})
}
