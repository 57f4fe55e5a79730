// Package memory is an in-process implementation of the storage collaborator.
// It backs tests and deployments that run without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ems/dispatch/internal/store"

	"github.com/google/uuid"
)

// Store keeps every record in memory behind a single lock.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	history     map[uuid.UUID]*store.HistoryRecord
	order       []uuid.UUID
	abLog       []store.ABLogEntry
	predictions []store.PredictionRecord
	alerts      map[uuid.UUID]*store.Alert
	alertOrder  []uuid.UUID
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Prober = (*Store)(nil)
)

// New returns an empty store. now may be nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now:     now,
		history: make(map[uuid.UUID]*store.HistoryRecord),
		alerts:  make(map[uuid.UUID]*store.Alert),
	}
}

// CreateHistoryRecord stores a copy of rec under a new id.
func (s *Store) CreateHistoryRecord(_ context.Context, rec store.HistoryRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.New()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Outcome = nil
	cp := cloneHistory(rec)
	s.history[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

// GetHistoryByDispatch returns records for a dispatch, newest first.
func (s *Store) GetHistoryByDispatch(_ context.Context, dispatchID int64) ([]store.HistoryRecord, error) {
	return s.filterHistory(0, func(r *store.HistoryRecord) bool { return r.DispatchID == dispatchID }), nil
}

// GetRecent returns up to limit records created in the last hours, newest first.
func (s *Store) GetRecent(_ context.Context, limit, hours int) ([]store.HistoryRecord, error) {
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	return s.filterHistory(limit, func(r *store.HistoryRecord) bool { return !r.CreatedAt.Before(since) }), nil
}

// GetByAmbulance returns up to limit records for an ambulance, newest first.
func (s *Store) GetByAmbulance(_ context.Context, ambulanceID int64, limit int) ([]store.HistoryRecord, error) {
	return s.filterHistory(limit, func(r *store.HistoryRecord) bool { return r.AmbulanceID == ambulanceID }), nil
}

// UpdateOutcome attaches outcome fields once.
func (s *Store) UpdateOutcome(_ context.Context, id uuid.UUID, outcome store.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.history[id]
	if !ok {
		return store.ErrNotFound
	}
	if rec.Outcome != nil {
		return store.ErrOutcomeRecorded
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = s.now()
	}
	rec.Outcome = &outcome
	return nil
}

// GetStatistics aggregates records created in the last hours.
func (s *Store) GetStatistics(_ context.Context, hours int) (store.HistoryStatistics, error) {
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	recs := s.filterHistory(0, func(r *store.HistoryRecord) bool { return !r.CreatedAt.Before(since) })
	st := store.Summarize(recs)
	st.Hours = hours
	return st, nil
}

// AmbulancePerformance aggregates one ambulance over the last days.
func (s *Store) AmbulancePerformance(_ context.Context, ambulanceID int64, days int) (store.AmbulancePerformance, error) {
	since := s.now().AddDate(0, 0, -days)
	recs := s.filterHistory(0, func(r *store.HistoryRecord) bool {
		return r.AmbulanceID == ambulanceID && !r.CreatedAt.Before(since)
	})
	st := store.Summarize(recs)
	return store.AmbulancePerformance{
		AmbulanceID:            ambulanceID,
		Days:                   days,
		TotalAssignments:       st.TotalAssignments,
		OptimalCount:           st.OptimalCount,
		AvgDistanceKm:          st.AvgDistanceKm,
		AvgResponseTimeMinutes: st.AvgResponseTimeMinutes,
		AvgOptimizationScore:   st.AvgOptimizationScore,
	}, nil
}

// SeverityDistribution groups the last days of history by severity.
func (s *Store) SeverityDistribution(_ context.Context, days int) ([]store.SeverityBucket, error) {
	since := s.now().AddDate(0, 0, -days)
	recs := s.filterHistory(0, func(r *store.HistoryRecord) bool { return !r.CreatedAt.Before(since) })
	return store.GroupBySeverity(recs), nil
}

func (s *Store) filterHistory(limit int, keep func(*store.HistoryRecord) bool) []store.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.HistoryRecord, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.history[s.order[i]]
		if !keep(rec) {
			continue
		}
		out = append(out, cloneHistory(*rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// AppendABLog appends an A/B entry.
func (s *Store) AppendABLog(_ context.Context, entry store.ABLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.abLog) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.abLog = append(s.abLog, entry)
	return nil
}

// ListABLog returns entries created at or after since, oldest first.
func (s *Store) ListABLog(_ context.Context, since time.Time) ([]store.ABLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ABLogEntry, 0)
	for _, e := range s.abLog {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AppendPrediction appends a prediction record.
func (s *Store) AppendPrediction(_ context.Context, rec store.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = int64(len(s.predictions) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.predictions = append(s.predictions, rec)
	return nil
}

// ListPredictions returns records created in [from, to), oldest first.
func (s *Store) ListPredictions(_ context.Context, from, to time.Time) ([]store.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.PredictionRecord, 0)
	for _, r := range s.predictions {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// CreateIfNoneOpen inserts alert unless an open alert of the same type exists.
func (s *Store) CreateIfNoneOpen(_ context.Context, alert store.Alert) (store.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.alertOrder {
		if a := s.alerts[id]; a.Type == alert.Type && a.Status == store.AlertOpen {
			return *a, false, nil
		}
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	alert.Status = store.AlertOpen
	cp := alert
	s.alerts[alert.ID] = &cp
	s.alertOrder = append(s.alertOrder, alert.ID)
	return alert, true, nil
}

// GetAlert returns one alert.
func (s *Store) GetAlert(_ context.Context, id uuid.UUID) (store.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return store.Alert{}, store.ErrNotFound
	}
	return *a, nil
}

// ResolveAlert transitions an open alert to resolved.
func (s *Store) ResolveAlert(_ context.Context, id uuid.UUID, notes string, at time.Time) (store.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return store.Alert{}, store.ErrNotFound
	}
	if a.Status != store.AlertOpen {
		return store.Alert{}, store.ErrAlreadyResolved
	}
	a.Status = store.AlertResolved
	a.ResolvedAt = &at
	a.ResolutionNotes = notes
	return *a, nil
}

// ListOpenAlerts returns open alerts, most severe first then newest.
func (s *Store) ListOpenAlerts(_ context.Context) ([]store.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Alert, 0)
	for _, id := range s.alertOrder {
		if a := s.alerts[id]; a.Status == store.AlertOpen {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := store.SeverityRank(out[i].Severity), store.SeverityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListAlertsSince returns alerts created at or after since, newest first.
func (s *Store) ListAlertsSince(_ context.Context, since time.Time) ([]store.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Alert, 0)
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		if a := s.alerts[s.alertOrder[i]]; !a.CreatedAt.Before(since) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func cloneHistory(r store.HistoryRecord) store.HistoryRecord {
	r.ParamedicIDs = append([]int64(nil), r.ParamedicIDs...)
	r.ParamedicLevels = append([]string(nil), r.ParamedicLevels...)
	if r.NurseID != nil {
		id := *r.NurseID
		r.NurseID = &id
	}
	if r.Outcome != nil {
		o := *r.Outcome
		r.Outcome = &o
	}
	return r
}

// Probe always reports a connected backend with every table present.
func (s *Store) Probe(context.Context) (store.Health, error) {
	tables := make(map[string]bool, len(store.Tables))
	for _, t := range store.Tables {
		tables[t] = true
	}
	return store.Health{Connected: true, Tables: tables}, nil
}
