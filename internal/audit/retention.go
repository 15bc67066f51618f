package audit

import (
	"context"
	"fmt"
	"log"
	"time"
)

// MinRetentionDays keeps at least one activation refresh cycle of history.
const MinRetentionDays = 30

// CheckRetentionPolicy verifies any purge/cleanup operation
func CheckRetentionPolicy(days int) error {
	if days < MinRetentionDays {
		return fmt.Errorf("retention must be minimum %d days (requested: %d)", MinRetentionDays, days)
	}
	return nil
}

// SafePurgeDate is the newest creation time that may be purged for days of
// retention.
func SafePurgeDate(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// Purge deletes transactions older than days and reports how many it removed.
func (s *Service) Purge(ctx context.Context, days int) (int64, error) {
	if err := CheckRetentionPolicy(days); err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cops_transactions WHERE created_at < $1`, SafePurgeDate(time.Now().UTC(), days))
	if err != nil {
		return 0, fmt.Errorf("purge transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[audit] Purged %d transactions older than %d days", n, days)
	}
	return n, nil
}
