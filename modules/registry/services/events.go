package services

import (
	"context"
	"errors"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/pkg/eventbus"
)

const (
	OpUpdateFields = "update_fields"
	OpAddField     = "add_field"
	OpCreateRecord = "create_record"
	OpSetStatus    = "set_status"
)

// RecordChanged is published once a write has been applied and the registry recomputed.
type RecordChanged struct {
	Op      string
	Level   level.Level
	HumanID string
	Run     *Run
}

// WithEventBus publishes a *RecordChanged after every successful write.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *RegistryService) { s.events = bus }
}

func (s *RegistryService) publish(ctx context.Context, change *RecordChanged) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, change); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		s.logger.WithError(err).WithField("op", change.Op).Warn("record change handlers failed")
	}
}
