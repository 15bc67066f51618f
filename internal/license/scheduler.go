package license

import (
	"context"
	"log"
	"sync"
	"time"
)

// Alert is raised for a record whose local expiry date is near or past.
type Alert struct {
	Type         string // "30d", "7d" or "expired"
	Filename     string
	AppID        string
	ExpiryDate   string
	DaysToExpiry int
}

// Scheduler periodically checks the expiry dates of the managed records.
// Records whose expiry is controlled by the server are skipped.
type Scheduler struct {
	manager    *Manager
	emit       func(Alert)
	lastAlerts map[string]time.Time // De-duplication: type|filename -> date
	mu         sync.Mutex
	now        func() time.Time
}

// NewScheduler returns a scheduler that logs alerts when emit is nil.
func NewScheduler(m *Manager, emit func(Alert)) *Scheduler {
	s := &Scheduler{
		manager:    m,
		emit:       emit,
		lastAlerts: make(map[string]time.Time),
		now:        time.Now,
	}
	if s.emit == nil {
		s.emit = logAlert
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) {
	// Check immediately, then hourly
	s.Check()

	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Check()
			}
		}
	}()
}

// Check raises at most one alert per record and type per day.
func (s *Scheduler) Check() {
	state := s.manager.GetState()
	if state.Report == nil {
		return
	}
	now := s.now()
	loc := s.manager.decoder.location

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, oc := range state.Report.Configs {
		expiry, err := time.ParseInLocation("2006-01-02", oc.ExpiryDate, loc)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(now).Hours() / 24)

		var alertType string
		switch {
		case now.After(expiry):
			alertType = "expired"
		case days <= 7:
			alertType = "7d"
		case days <= 30:
			alertType = "30d"
		default:
			continue
		}

		key := alertType + "|" + oc.Filename
		if last, ok := s.lastAlerts[key]; ok && isSameDay(last, now) {
			continue
		}
		s.emit(Alert{
			Type:         alertType,
			Filename:     oc.Filename,
			AppID:        oc.AppID,
			ExpiryDate:   oc.ExpiryDate,
			DaysToExpiry: days,
		})
		s.lastAlerts[key] = now
	}
}

func logAlert(a Alert) {
	log.Printf("[license] LICENSE ALERT [%s]: %s (%s) expires %s (%d days)", a.Type, a.AppID, a.Filename, a.ExpiryDate, a.DaysToExpiry)
}

func isSameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
