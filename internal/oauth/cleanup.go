package oauth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuomag9/notionsocial/internal/store"
)

// PurgeExpiredStates deletes states whose flow was abandoned. Consumed
// states are already gone, so this only catches callbacks that never came.
func PurgeExpiredStates(ctx context.Context, states store.StateStore, now time.Time, log zerolog.Logger) (int64, error) {
	n, err := states.PurgeExpiredStates(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("OAuth cleanup: failed to delete expired states")
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("OAuth cleanup: deleted expired states")
	}
	return n, nil
}
