package attendance

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryStore keeps per-session present counters in Redis so dashboards can
// poll a cheap hash instead of scanning records. Maintained by the worker;
// best-effort, the records table stays the source of truth.
type SummaryStore struct {
	client *redis.Client
}

// NewSummaryStore creates a summary store.
func NewSummaryStore(client *redis.Client) *SummaryStore {
	return &SummaryStore{client: client}
}

func summaryKey(sessionID string) string {
	return "edtrack:summary:" + sessionID
}

// Apply folds one record into the session's counters.
func (s *SummaryStore) Apply(ctx context.Context, rec Record) error {
	key := summaryKey(rec.SessionID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "present", 1)
	pipe.HSet(ctx, key, "last_marked_at", rec.MarkedAt.UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the counters for a session; zero values when none exist.
func (s *SummaryStore) Get(ctx context.Context, sessionID string) (Summary, error) {
	vals, err := s.client.HGetAll(ctx, summaryKey(sessionID)).Result()
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	if v, ok := vals["present"]; ok {
		sum.Present, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["last_marked_at"]; ok {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			sum.LastMarkedAt = &t
		}
	}
	return sum, nil
}
