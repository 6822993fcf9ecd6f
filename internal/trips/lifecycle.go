package trips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/models"
)

// Lifecycle is the course state machine. Every mutation goes through a
// conditional store update so concurrent callers race on the stored status,
// never on in-process state. Transitions are conditionally idempotent: a
// repeat of an already-achieved transition returns the stored course
// unchanged instead of failing or re-mutating.
type Lifecycle struct {
	store  CourseStore
	fleet  *fleet.Registry
	logger *slog.Logger
}

func NewLifecycle(store CourseStore, reg *fleet.Registry, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, fleet: reg, logger: logger}
}

// Create validates and persists a new course in requested state.
// tarifEstime must already be resolved (client-provided or estimated).
func (l *Lifecycle) Create(ctx context.Context, req models.CourseRequest, tarifEstime float64) (*models.Course, error) {
	if !req.Class.Valid() {
		return nil, fmt.Errorf("unknown vehicle class %q", req.Class)
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", req.Method)
	}
	if req.Depart == "" || req.Destination == "" {
		return nil, fmt.Errorf("depart and destination are required")
	}
	courseType := req.Type
	if courseType == "" {
		courseType = models.CourseImmediate
	}
	c := &models.Course{
		ID:          uuid.NewString(),
		ClientID:    req.ClientID,
		Class:       req.Class,
		Depart:      req.Depart,
		Destination: req.Destination,
		DepartCoord: req.DepartCoord,
		DestCoord:   req.DestCoord,
		Type:        courseType,
		Status:      models.CourseRequested,
		RequestedAt: time.Now(),
		TarifEstime: tarifEstime,
		Method:      req.Method,
		NotesClient: req.NotesClient,
	}
	if err := l.store.CreateCourse(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*models.Course, error) {
	return l.store.GetCourse(ctx, id)
}

// Accept resolves a driver's claim on a requested course. Exactly one of N
// concurrent claimants wins; the rest observe ErrAlreadyClaimed. The driver
// must be available, approved, and drive the requested vehicle class.
func (l *Lifecycle) Accept(ctx context.Context, courseID, driverID string) (*models.Course, error) {
	c, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CourseAccepted && c.ChauffeurID == driverID {
		return c, nil
	}
	if c.Status != models.CourseRequested {
		return nil, models.ErrAlreadyClaimed
	}

	d, err := l.fleet.Get(driverID)
	if err != nil {
		return nil, err
	}
	if !d.Approved {
		return nil, fmt.Errorf("driver %s not approved: %w", driverID, models.ErrDriverUnavailable)
	}
	v, ok := l.fleet.VehicleOf(driverID)
	if !ok || v.Class != c.Class {
		return nil, fmt.Errorf("vehicle class mismatch: %w", models.ErrDriverUnavailable)
	}
	if err := l.fleet.TryAcquire(driverID); err != nil {
		return nil, err
	}

	now := time.Now()
	updated := *c
	updated.ChauffeurID = driverID
	updated.Status = models.CourseAccepted
	updated.AcceptedAt = &now

	if err := l.store.UpdateCourseIf(ctx, &updated, models.CourseRequested); err != nil {
		l.fleet.Release(driverID)
		if err == ErrStatusConflict {
			// lost the race unless our own earlier attempt already landed
			if cur, gerr := l.store.GetCourse(ctx, courseID); gerr == nil &&
				cur.Status == models.CourseAccepted && cur.ChauffeurID == driverID {
				return cur, nil
			}
			return nil, models.ErrAlreadyClaimed
		}
		return nil, err
	}
	return &updated, nil
}

// Start moves an accepted course to in_progress. Only the assigned driver
// may start it.
func (l *Lifecycle) Start(ctx context.Context, courseID, driverID string) (*models.Course, error) {
	c, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CourseInProgress && c.ChauffeurID == driverID {
		return c, nil
	}
	if c.Status != models.CourseAccepted {
		return nil, &models.TransitionError{From: c.Status, To: models.CourseInProgress}
	}
	if c.ChauffeurID != driverID {
		return nil, fmt.Errorf("course assigned to another driver: %w", models.ErrDriverUnavailable)
	}

	now := time.Now()
	updated := *c
	updated.Status = models.CourseInProgress
	updated.StartedAt = &now

	if err := l.store.UpdateCourseIf(ctx, &updated, models.CourseAccepted); err != nil {
		if err == ErrStatusConflict {
			if cur, gerr := l.store.GetCourse(ctx, courseID); gerr == nil &&
				cur.Status == models.CourseInProgress && cur.ChauffeurID == driverID {
				return cur, nil
			}
			return nil, &models.TransitionError{From: c.Status, To: models.CourseInProgress}
		}
		return nil, err
	}
	return &updated, nil
}

// Complete finishes an in_progress course. tarifFinal of 0 means "not
// supplied" and defaults to the estimated fare. Exactly one Paiement is
// created per course regardless of repeat calls; the assigned driver is
// released back to available. The course row and its Paiement commit
// together through CompleteCourse, so a store failure leaves the course
// in_progress and the driver held for a retry.
func (l *Lifecycle) Complete(ctx context.Context, courseID, driverID string, tarifFinal float64) (*models.Course, *models.Paiement, error) {
	c, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status == models.CourseCompleted && c.ChauffeurID == driverID {
		pay, perr := l.paiementForCompleted(ctx, c)
		if perr != nil {
			return nil, nil, perr
		}
		return c, pay, nil
	}
	if c.Status != models.CourseInProgress {
		return nil, nil, &models.TransitionError{From: c.Status, To: models.CourseCompleted}
	}
	if c.ChauffeurID != driverID {
		return nil, nil, fmt.Errorf("course assigned to another driver: %w", models.ErrDriverUnavailable)
	}
	if tarifFinal == 0 {
		tarifFinal = c.TarifEstime
	}

	now := time.Now()
	updated := *c
	updated.Status = models.CourseCompleted
	updated.EndedAt = &now
	updated.TarifFinal = tarifFinal
	pay := &models.Paiement{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Montant:   tarifFinal,
		Status:    models.PaymentPending,
		Method:    c.Method,
		CreatedAt: now,
	}

	if err := l.store.CompleteCourse(ctx, &updated, models.CourseInProgress, pay); err != nil {
		if err == ErrStatusConflict {
			if cur, gerr := l.store.GetCourse(ctx, courseID); gerr == nil &&
				cur.Status == models.CourseCompleted && cur.ChauffeurID == driverID {
				pay, perr := l.paiementForCompleted(ctx, cur)
				if perr != nil {
					return nil, nil, perr
				}
				return cur, pay, nil
			}
			return nil, nil, &models.TransitionError{From: c.Status, To: models.CourseCompleted}
		}
		return nil, nil, err
	}
	l.fleet.Release(driverID)
	return &updated, pay, nil
}

// paiementForCompleted resolves the Paiement of an already-completed
// course. A completed course missing its Paiement (a partial write from an
// older deployment or manual intervention) is repaired in place and the
// driver released.
func (l *Lifecycle) paiementForCompleted(ctx context.Context, c *models.Course) (*models.Paiement, error) {
	pay, err := l.store.PaiementForCourse(ctx, c.ID)
	if err == nil {
		return pay, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	montant := c.TarifFinal
	if montant == 0 {
		montant = c.TarifEstime
	}
	pay = &models.Paiement{
		ID:        uuid.NewString(),
		CourseID:  c.ID,
		Montant:   montant,
		Status:    models.PaymentPending,
		Method:    c.Method,
		CreatedAt: time.Now(),
	}
	if serr := l.store.SavePaiement(ctx, pay); serr != nil {
		return nil, serr
	}
	l.logger.Warn("repaired missing paiement for completed course", "course_id", c.ID, "paiement_id", pay.ID)
	l.fleet.Release(c.ChauffeurID)
	return pay, nil
}

// Cancel aborts a course before it starts. A driver already assigned is
// released back to available.
func (l *Lifecycle) Cancel(ctx context.Context, courseID string) (*models.Course, error) {
	c, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CourseCancelled {
		return c, nil
	}
	if c.Status != models.CourseRequested && c.Status != models.CourseAccepted {
		return nil, &models.TransitionError{From: c.Status, To: models.CourseCancelled}
	}

	now := time.Now()
	updated := *c
	updated.Status = models.CourseCancelled
	updated.EndedAt = &now

	if err := l.store.UpdateCourseIf(ctx, &updated, c.Status); err != nil {
		if err == ErrStatusConflict {
			if cur, gerr := l.store.GetCourse(ctx, courseID); gerr == nil && cur.Status == models.CourseCancelled {
				return cur, nil
			}
			return nil, &models.TransitionError{From: c.Status, To: models.CourseCancelled}
		}
		return nil, err
	}
	if c.ChauffeurID != "" {
		l.fleet.Release(c.ChauffeurID)
	}
	return &updated, nil
}

// Evaluate records the rider's rating for a completed course and folds the
// driver note into the registry's running average.
func (l *Lifecycle) Evaluate(ctx context.Context, courseID, clientID string, noteChauffeur, noteVehicule int, commentaire string) (*models.Evaluation, error) {
	if noteChauffeur < 1 || noteChauffeur > 5 || noteVehicule < 1 || noteVehicule > 5 {
		return nil, fmt.Errorf("notes must be between 1 and 5")
	}
	c, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CourseCompleted {
		return nil, &models.TransitionError{From: c.Status, To: models.CourseCompleted}
	}
	if c.ClientID != clientID {
		return nil, fmt.Errorf("course belongs to another client: %w", models.ErrNotFound)
	}
	e := &models.Evaluation{
		ID:            uuid.NewString(),
		CourseID:      courseID,
		ChauffeurID:   c.ChauffeurID,
		ClientID:      clientID,
		NoteChauffeur: noteChauffeur,
		NoteVehicule:  noteVehicule,
		Commentaire:   commentaire,
		CreatedAt:     time.Now(),
	}
	if err := l.store.SaveEvaluation(ctx, e); err != nil {
		return nil, err
	}
	if err := l.fleet.ApplyRating(c.ChauffeurID, noteChauffeur); err != nil {
		l.logger.Warn("rating not applied", "chauffeur_id", c.ChauffeurID, "error", err)
	}
	return e, nil
}
