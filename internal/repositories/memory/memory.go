// Package memory provides an in-memory Repository used by tests and by
// local development without a database. Transactions are implemented by
// snapshotting the store and restoring it when the transaction function
// fails, matching the all-or-nothing contract of the postgres
// implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

type store struct {
	mu            sync.Mutex
	nextID        uint
	sessions      map[uint]models.ProctoringSession
	events        map[uint]models.ProctoringEvent
	violations    map[uint]models.ProctoringViolation
	alerts        map[uint]models.ProctoringAlert
	interventions map[uint]models.ProctoringIntervention
}

func (s *store) snapshot() *store {
	return &store{
		nextID:        s.nextID,
		sessions:      cloneMap(s.sessions),
		events:        cloneMap(s.events),
		violations:    cloneMap(s.violations),
		alerts:        cloneMap(s.alerts),
		interventions: cloneMap(s.interventions),
	}
}

func (s *store) restore(from *store) {
	s.nextID = from.nextID
	s.sessions = from.sessions
	s.events = from.events
	s.violations = from.violations
	s.alerts = from.alerts
	s.interventions = from.interventions
}

func cloneMap[T any](m map[uint]T) map[uint]T {
	out := make(map[uint]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Repository struct {
	store *store
}

func NewRepository() *Repository {
	return &Repository{store: &store{
		sessions:      make(map[uint]models.ProctoringSession),
		events:        make(map[uint]models.ProctoringEvent),
		violations:    make(map[uint]models.ProctoringViolation),
		alerts:        make(map[uint]models.ProctoringAlert),
		interventions: make(map[uint]models.ProctoringIntervention),
	}}
}

func (r *Repository) Session() repositories.SessionRepository           { return &sessionStore{r.store} }
func (r *Repository) Event() repositories.EventRepository               { return &eventStore{r.store} }
func (r *Repository) Violation() repositories.ViolationRepository       { return &violationStore{r.store} }
func (r *Repository) Alert() repositories.AlertRepository               { return &alertStore{r.store} }
func (r *Repository) Intervention() repositories.InterventionRepository { return &interventionStore{r.store} }

func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.store.mu.Lock()
	backup := r.store.snapshot()
	r.store.mu.Unlock()

	if err := fn(r); err != nil {
		r.store.mu.Lock()
		r.store.restore(backup)
		r.store.mu.Unlock()
		return err
	}
	return nil
}

// ===== SESSIONS =====

type sessionStore struct{ s *store }

func (st *sessionStore) Create(ctx context.Context, session *models.ProctoringSession) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.nextID++
	session.ID = st.s.nextID
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	session.Settings.SessionID = session.ID
	st.s.sessions[session.ID] = *session
	return nil
}

func (st *sessionStore) GetByID(ctx context.Context, id uint) (*models.ProctoringSession, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	session, ok := st.s.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &session, nil
}

func (st *sessionStore) GetByIDWithDetails(ctx context.Context, id uint) (*models.ProctoringSession, error) {
	return st.GetByID(ctx, id)
}

func (st *sessionStore) Update(ctx context.Context, session *models.ProctoringSession) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	session.UpdatedAt = time.Now()
	st.s.sessions[session.ID] = *session
	return nil
}

func (st *sessionStore) GetActiveByExam(ctx context.Context, examID uint) ([]*models.ProctoringSession, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringSession
	for _, session := range st.s.sessions {
		if session.ExamID != examID {
			continue
		}
		if session.Status != models.SessionActive && session.Status != models.SessionPaused {
			continue
		}
		s := session
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *sessionStore) GetByStudentAndExam(ctx context.Context, studentID string, examID uint) ([]*models.ProctoringSession, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringSession
	for _, session := range st.s.sessions {
		if session.StudentID == studentID && session.ExamID == examID {
			s := session
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *sessionStore) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.ProctoringSession, int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringSession
	for _, session := range st.s.sessions {
		if filters.ExamID != nil && session.ExamID != *filters.ExamID {
			continue
		}
		if filters.StudentID != nil && session.StudentID != *filters.StudentID {
			continue
		}
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		s := session
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if filters.Offset > 0 && filters.Offset < len(out) {
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(out) {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (st *sessionStore) TouchActivity(ctx context.Context, id uint, at time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	session, ok := st.s.sessions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	session.LastActivityAt = at
	st.s.sessions[id] = session
	return nil
}

// ===== EVENTS =====

type eventStore struct{ s *store }

func (st *eventStore) Create(ctx context.Context, event *models.ProctoringEvent) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.nextID++
	event.ID = st.s.nextID
	event.CreatedAt = time.Now()
	st.s.events[event.ID] = *event
	return nil
}

func (st *eventStore) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringEvent, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringEvent
	for _, event := range st.s.events {
		if event.SessionID == sessionID {
			e := event
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

func (st *eventStore) CountBySession(ctx context.Context, sessionID uint) (int64, error) {
	events, err := st.GetBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// ===== VIOLATIONS =====

type violationStore struct{ s *store }

func (st *violationStore) Create(ctx context.Context, violation *models.ProctoringViolation) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.nextID++
	violation.ID = st.s.nextID
	violation.CreatedAt = time.Now()
	st.s.violations[violation.ID] = *violation
	return nil
}

func (st *violationStore) GetByID(ctx context.Context, id uint) (*models.ProctoringViolation, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	violation, ok := st.s.violations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &violation, nil
}

func (st *violationStore) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringViolation, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringViolation
	for _, violation := range st.s.violations {
		if violation.SessionID == sessionID {
			v := violation
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

func (st *violationStore) Review(ctx context.Context, id uint, reviewerID string, notes *string, at time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	violation, ok := st.s.violations[id]
	if !ok {
		return repositories.ErrNotFound
	}
	violation.Reviewed = true
	violation.ReviewNotes = notes
	violation.ReviewedBy = &reviewerID
	violation.ReviewedAt = &at
	st.s.violations[id] = violation
	return nil
}

// ===== ALERTS =====

type alertStore struct{ s *store }

func (st *alertStore) Create(ctx context.Context, alert *models.ProctoringAlert) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.nextID++
	alert.ID = st.s.nextID
	alert.CreatedAt = time.Now()
	st.s.alerts[alert.ID] = *alert
	return nil
}

func (st *alertStore) GetByID(ctx context.Context, id uint) (*models.ProctoringAlert, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	alert, ok := st.s.alerts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &alert, nil
}

func (st *alertStore) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringAlert
	for _, alert := range st.s.alerts {
		if alert.SessionID == sessionID {
			a := alert
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *alertStore) GetPendingByExam(ctx context.Context, examID uint) ([]*models.ProctoringAlert, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringAlert
	for _, alert := range st.s.alerts {
		if alert.Status != models.AlertPending {
			continue
		}
		session, ok := st.s.sessions[alert.SessionID]
		if !ok || session.ExamID != examID {
			continue
		}
		a := alert
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (st *alertStore) GetOpenBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringAlert
	for _, alert := range st.s.alerts {
		if alert.SessionID == sessionID && alert.Status != models.AlertResolved {
			a := alert
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (st *alertStore) Update(ctx context.Context, alert *models.ProctoringAlert) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.alerts[alert.ID]; !ok {
		return repositories.ErrNotFound
	}
	st.s.alerts[alert.ID] = *alert
	return nil
}

// ===== INTERVENTIONS =====

type interventionStore struct{ s *store }

func (st *interventionStore) Create(ctx context.Context, intervention *models.ProctoringIntervention) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.nextID++
	intervention.ID = st.s.nextID
	intervention.CreatedAt = time.Now()
	st.s.interventions[intervention.ID] = *intervention
	return nil
}

func (st *interventionStore) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringIntervention, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []*models.ProctoringIntervention
	for _, intervention := range st.s.interventions {
		if intervention.SessionID == sessionID {
			i := intervention
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}
