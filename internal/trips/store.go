package trips

import (
	"context"
	"errors"
	"sync"

	"github.com/cisse-224/clappybackend/internal/models"
)

// ErrStatusConflict is returned by the conditional writes (UpdateCourseIf,
// CompleteCourse) when the course's stored
// status no longer matches the expected one. The lifecycle layer translates
// it into AlreadyClaimed or InvalidTransition depending on the edge.
var ErrStatusConflict = errors.New("course status conflict")

// CourseStore defines persistence operations for courses and their payments.
// UpdateCourseIf is the single operation that requires atomicity from the
// backend: the update must only apply while the stored status equals expect.
type CourseStore interface {
	CreateCourse(ctx context.Context, c *models.Course) error
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	UpdateCourseIf(ctx context.Context, c *models.Course, expect models.CourseStatus) error
	// CompleteCourse commits the final course state and its Paiement as one
	// unit: either both land or neither does.
	CompleteCourse(ctx context.Context, c *models.Course, expect models.CourseStatus, pay *models.Paiement) error
	CoursesByClient(ctx context.Context, clientID string) ([]*models.Course, error)
	CoursesByChauffeur(ctx context.Context, chauffeurID string) ([]*models.Course, error)

	SavePaiement(ctx context.Context, p *models.Paiement) error
	GetPaiement(ctx context.Context, id string) (*models.Paiement, error)
	PaiementForCourse(ctx context.Context, courseID string) (*models.Paiement, error)
	UpdatePaiement(ctx context.Context, p *models.Paiement) error

	SaveEvaluation(ctx context.Context, e *models.Evaluation) error
	EvaluationForCourse(ctx context.Context, courseID string) (*models.Evaluation, error)
}

// MemoryStore keeps everything in process. The conditional update runs under
// the store lock, which is what makes the claim CAS atomic in this backend.
type MemoryStore struct {
	mu          sync.RWMutex
	courses     map[string]*models.Course
	paiements   map[string]*models.Paiement
	byCourse    map[string]string
	evaluations map[string]*models.Evaluation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]*models.Course),
		paiements:   make(map[string]*models.Paiement),
		byCourse:    make(map[string]string),
		evaluations: make(map[string]*models.Evaluation),
	}
}

func (m *MemoryStore) CreateCourse(ctx context.Context, c *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.courses[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateCourseIf(ctx context.Context, c *models.Course, expect models.CourseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.courses[c.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != expect {
		return ErrStatusConflict
	}
	cp := *c
	m.courses[c.ID] = &cp
	return nil
}

func (m *MemoryStore) CompleteCourse(ctx context.Context, c *models.Course, expect models.CourseStatus, pay *models.Paiement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.courses[c.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != expect {
		return ErrStatusConflict
	}
	cp := *c
	m.courses[c.ID] = &cp
	pp := *pay
	m.paiements[pay.ID] = &pp
	m.byCourse[pay.CourseID] = pay.ID
	return nil
}

func (m *MemoryStore) CoursesByClient(ctx context.Context, clientID string) ([]*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Course
	for _, c := range m.courses {
		if c.ClientID == clientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CoursesByChauffeur(ctx context.Context, chauffeurID string) ([]*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Course
	for _, c := range m.courses {
		if c.ChauffeurID == chauffeurID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) SavePaiement(ctx context.Context, p *models.Paiement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCourse[p.CourseID]; ok {
		return errors.New("paiement already exists for course " + p.CourseID)
	}
	cp := *p
	m.paiements[p.ID] = &cp
	m.byCourse[p.CourseID] = p.ID
	return nil
}

func (m *MemoryStore) GetPaiement(ctx context.Context, id string) (*models.Paiement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.paiements[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PaiementForCourse(ctx context.Context, courseID string) (*models.Paiement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCourse[courseID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m.paiements[id]
	return &cp, nil
}

func (m *MemoryStore) UpdatePaiement(ctx context.Context, p *models.Paiement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paiements[p.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *p
	m.paiements[p.ID] = &cp
	return nil
}

func (m *MemoryStore) SaveEvaluation(ctx context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[e.CourseID]; ok {
		return errors.New("evaluation already exists for course " + e.CourseID)
	}
	cp := *e
	m.evaluations[e.CourseID] = &cp
	return nil
}

func (m *MemoryStore) EvaluationForCourse(ctx context.Context, courseID string) (*models.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evaluations[courseID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}
