// Package results records submitted match outcomes against player
// progression totals.
package results

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/storage"
)

// Recorder applies match results. Application is idempotent per match: a
// retried submission changes nothing.
type Recorder struct {
	store      *storage.Store
	milestones []int64
}

// New creates a recorder with the given achievement milestones.
func New(store *storage.Store, milestones []int64) *Recorder {
	sorted := append([]int64(nil), milestones...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Recorder{store: store, milestones: sorted}
}

// Achievements returns the full milestone set a cumulative total has
// reached. Recomputed from scratch each time so the stored set is always a
// pure function of the totals, not an incremental accumulation.
func (r *Recorder) Achievements(totalScore int64) []int64 {
	reached := []int64{}
	for _, m := range r.milestones {
		if totalScore >= m {
			reached = append(reached, m)
		}
	}
	return reached
}

// Apply records the result of a match. Each player is cross-checked
// against the persisted participant list; entries for players who were not
// in the match are skipped. Returns whether this call applied the result
// (false means an earlier identical submission already did).
func (r *Recorder) Apply(ctx context.Context, taskID string, result *domain.MatchResult) (bool, error) {
	record, err := r.store.GetMatch(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("loading match: %w", err)
	}

	deltas := make([]domain.PlayerResult, 0, len(result.Players))
	for _, p := range result.Players {
		if !record.Participant(p.PlayerID) {
			log.Warn().Str("taskId", taskID).Str("playerId", p.PlayerID).Msg("results: player not in match, skipping")
			continue
		}
		deltas = append(deltas, p)
	}

	applied, err := r.store.ApplyMatchResult(ctx, taskID, deltas, r.Achievements)
	if err != nil {
		return false, fmt.Errorf("applying result: %w", err)
	}
	if applied {
		log.Info().Str("taskId", taskID).Int("players", len(deltas)).Msg("results: match result applied")
	} else {
		log.Info().Str("taskId", taskID).Msg("results: match result already applied")
	}
	return applied, nil
}
