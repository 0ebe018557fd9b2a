package authcore

import "context"

const (
	defaultEventPageLimit = 20
	maxEventPageLimit     = 100
)

// SecurityEvents returns a page of the user's security log, newest first,
// along with the total count matching the filter. Page numbering starts
// at 1.
func (e *Engine) SecurityEvents(ctx context.Context, userID string, filter EventFilter, page, limit int) ([]*SecurityEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultEventPageLimit
	}
	if limit > maxEventPageLimit {
		limit = maxEventPageLimit
	}

	return e.eventStore.Query(ctx, userID, filter, page, limit)
}
