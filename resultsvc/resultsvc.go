// Package resultsvc persists and publishes outcomes of finished games.
package resultsvc

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/portal"
	"github.com/lefinal/pairs-server/services"
	"go.uber.org/zap"
	"time"
)

// recordTimeout is the timeout for persisting a single outcome.
const recordTimeout = 10 * time.Second

// Store are the persistence dependencies needed for NewResultService.
type Store interface {
	// RecordOutcome saves the given game.Outcome and returns the id of the
	// created record.
	RecordOutcome(ctx context.Context, outcome game.Outcome) (uuid.UUID, error)
}

// GameFinishedEvent is published to portal.TopicGameFinished.
type GameFinishedEvent struct {
	// ResultID is the id of the persisted result. It is not set if no store is
	// used or persisting failed.
	ResultID nulls.String `json:"result_id"`
	game.Outcome
}

// resultService reads outcomes, persists them in the optional Store and
// publishes them via the optional portal.Portal.
type resultService struct {
	logger *zap.Logger
	// outcomes receives outcomes of finished games.
	outcomes <-chan game.Outcome
	// store is used for persisting outcomes. If nil, outcomes are not persisted.
	store Store
	// portal is used for publishing outcomes. If nil, outcomes are not
	// published.
	portal portal.Portal
}

// NewResultService creates a new services.Service ready to run. Both store and
// portal are optional and might be nil.
func NewResultService(logger *zap.Logger, outcomes <-chan game.Outcome, store Store, portal portal.Portal) services.Service {
	return &resultService{
		logger:   logger,
		outcomes: outcomes,
		store:    store,
		portal:   portal,
	}
}

// Run handles outcomes until the given context.Context is done.
func (s *resultService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case outcome, more := <-s.outcomes:
			if !more {
				return nil
			}
			s.handleOutcome(ctx, outcome)
		}
	}
}

// handleOutcome persists and publishes the given game.Outcome.
func (s *resultService) handleOutcome(ctx context.Context, outcome game.Outcome) {
	logger := s.logger.With(zap.String("room_id", outcome.RoomID))
	e := GameFinishedEvent{Outcome: outcome}
	if s.store != nil {
		recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
		resultID, err := s.store.RecordOutcome(recordCtx, outcome)
		cancel()
		if err != nil {
			errors.Log(logger, errors.Wrap(err, "record outcome", nil))
		} else {
			e.ResultID = nulls.NewString(resultID.String())
			logger.Debug("recorded game outcome", zap.String("result_id", resultID.String()))
		}
	}
	if s.portal != nil {
		s.portal.Publish(ctx, portal.TopicGameFinished, e)
	}
	logger.Info("game finished",
		zap.String("reason", string(outcome.Reason)),
		zap.Bool("tie", outcome.Tie))
}
