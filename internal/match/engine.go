package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/models"
	"github.com/cisse-224/clappybackend/internal/notify"
	"github.com/cisse-224/clappybackend/internal/observability"
	"github.com/cisse-224/clappybackend/internal/trips"
)

// CourseAlert is broadcast to every driver in the requested class's group
// when a course is created. Advertise-and-race: no driver is selected here.
type CourseAlert struct {
	Type        string              `json:"type"`
	CourseID    string              `json:"course_id"`
	Depart      string              `json:"adresse_depart"`
	Destination string              `json:"adresse_destination"`
	TarifEstime float64             `json:"tarif_estime"`
	Class       models.VehicleClass `json:"type_vehicule"`
}

// CourseTaken tells the group a race has been decided so drivers can
// discard the stale alert.
type CourseTaken struct {
	Type      string `json:"type"`
	CourseID  string `json:"course_id"`
	Chauffeur string `json:"chauffeur"`
}

// CourseCancelled retracts an alert for a course cancelled before pickup.
type CourseCancelled struct {
	Type     string `json:"type"`
	CourseID string `json:"course_id"`
}

// FareEstimator resolves the estimated fare when the request omits one.
type FareEstimator interface {
	Estimate(class models.VehicleClass, from, to *models.Coord) (float64, error)
}

// Notifier is the dispatch boundary; satisfied by notify.Dispatcher.
type Notifier interface {
	Dispatch(n notify.Notification)
}

// CardAuthorizer pre-authorizes the fare of carte_bancaire courses at claim
// time and releases the hold if the course is cancelled. Satisfied by
// payments.Service; nil disables holds.
type CardAuthorizer interface {
	Hold(ctx context.Context, courseID, clientID string, montant float64) error
	ReleaseHold(ctx context.Context, courseID string)
}

// Engine drives course matching: it advertises new courses to the eligible
// driver pool, resolves the claim race through the lifecycle CAS, and emits
// notifications strictly after each state mutation has committed.
type Engine struct {
	lifecycle  *trips.Lifecycle
	fleet      *fleet.Registry
	clients    *fleet.Directory
	dispatcher Notifier
	fares      FareEstimator
	cards      CardAuthorizer
	logger     *slog.Logger
}

func NewEngine(lc *trips.Lifecycle, reg *fleet.Registry, clients *fleet.Directory, d Notifier, fares FareEstimator, cards CardAuthorizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{lifecycle: lc, fleet: reg, clients: clients, dispatcher: d, fares: fares, cards: cards, logger: logger}
}

// CreateCourse validates, prices and stores a new course, then alerts the
// matching vehicle-class group.
func (e *Engine) CreateCourse(ctx context.Context, req models.CourseRequest) (*models.Course, error) {
	if _, err := e.clients.Get(req.ClientID); err != nil {
		return nil, fmt.Errorf("client %s: %w", req.ClientID, err)
	}
	tarif := req.TarifEstime
	if tarif == 0 && e.fares != nil {
		est, err := e.fares.Estimate(req.Class, req.DepartCoord, req.DestCoord)
		if err != nil {
			return nil, err
		}
		tarif = est
	}
	c, err := e.lifecycle.Create(ctx, req, tarif)
	if err != nil {
		return nil, err
	}
	observability.CoursesCreated.Inc()

	e.dispatcher.Dispatch(notify.Notification{
		Group: models.PresenceGroup(c.Class),
		Payload: CourseAlert{
			Type:        "new_trip_alert",
			CourseID:    c.ID,
			Depart:      c.Depart,
			Destination: c.Destination,
			TarifEstime: c.TarifEstime,
			Class:       c.Class,
		},
	})
	e.logger.Info("course created", "course_id", c.ID, "class", c.Class, "tarif_estime", c.TarifEstime)
	return c, nil
}

// Claim resolves one driver's claim attempt. On a win the group learns the
// course is taken and the rider is told who is coming; losers only get
// their error back.
func (e *Engine) Claim(ctx context.Context, courseID, driverID string) (*models.Course, error) {
	c, err := e.lifecycle.Accept(ctx, courseID, driverID)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyClaimed) {
			observability.ClaimsLost.Inc()
		}
		return nil, err
	}
	observability.ClaimsWon.Inc()

	if c.Method == models.PayCarte && e.cards != nil {
		// the ride proceeds even if the pre-authorization fails; the
		// fare falls back to capture-by-transaction at confirmation
		if err := e.cards.Hold(ctx, c.ID, c.ClientID, c.TarifEstime); err != nil {
			e.logger.Warn("card hold failed", "course_id", c.ID, "error", err)
		}
	}

	d, _ := e.fleet.Get(driverID)
	e.dispatcher.Dispatch(notify.Notification{
		Group:   models.PresenceGroup(c.Class),
		Payload: CourseTaken{Type: "trip_taken", CourseID: c.ID, Chauffeur: d.Nom},
	})
	if phone, ok := e.clients.PhoneOf(c.ClientID); ok {
		e.dispatcher.Dispatch(notify.Notification{
			SMSTo:   phone,
			SMSBody: fmt.Sprintf("Votre course a été acceptée par %s.", d.Nom),
		})
	}
	e.logger.Info("course claimed", "course_id", c.ID, "chauffeur_id", driverID)
	return c, nil
}

// Start marks pickup done; the rider is informed over SMS.
func (e *Engine) Start(ctx context.Context, courseID, driverID string) (*models.Course, error) {
	c, err := e.lifecycle.Start(ctx, courseID, driverID)
	if err != nil {
		return nil, err
	}
	if phone, ok := e.clients.PhoneOf(c.ClientID); ok {
		e.dispatcher.Dispatch(notify.Notification{
			SMSTo:   phone,
			SMSBody: "Votre course a démarré.",
		})
	}
	return c, nil
}

// Complete finishes the course and reports the final amount to the rider.
func (e *Engine) Complete(ctx context.Context, courseID, driverID string, tarifFinal float64) (*models.Course, *models.Paiement, error) {
	c, pay, err := e.lifecycle.Complete(ctx, courseID, driverID, tarifFinal)
	if err != nil {
		return nil, nil, err
	}
	observability.CoursesDone.Inc()
	if phone, ok := e.clients.PhoneOf(c.ClientID); ok {
		e.dispatcher.Dispatch(notify.Notification{
			SMSTo:   phone,
			SMSBody: fmt.Sprintf("Course terminée. Montant: %.0f GNF.", pay.Montant),
		})
	}
	e.logger.Info("course completed", "course_id", c.ID, "montant", pay.Montant)
	return c, pay, nil
}

// Cancel aborts a course. If the alert was still open the group is told to
// drop it; an assigned driver also hears directly.
func (e *Engine) Cancel(ctx context.Context, courseID string) (*models.Course, error) {
	before, err := e.lifecycle.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c, err := e.lifecycle.Cancel(ctx, courseID)
	if err != nil {
		return nil, err
	}
	observability.CoursesAborted.Inc()

	if c.Method == models.PayCarte && e.cards != nil {
		e.cards.ReleaseHold(ctx, c.ID)
	}
	if before.Status == models.CourseRequested {
		e.dispatcher.Dispatch(notify.Notification{
			Group:   models.PresenceGroup(c.Class),
			Payload: CourseCancelled{Type: "course_annulee", CourseID: c.ID},
		})
	}
	if before.ChauffeurID != "" {
		if d, derr := e.fleet.Get(before.ChauffeurID); derr == nil {
			e.dispatcher.Dispatch(notify.Notification{
				SMSTo:   d.Telephone,
				SMSBody: "La course a été annulée par le client.",
			})
		}
	}
	e.logger.Info("course cancelled", "course_id", c.ID)
	return c, nil
}

// Get exposes course lookup for the API layer.
func (e *Engine) Get(ctx context.Context, courseID string) (*models.Course, error) {
	return e.lifecycle.Get(ctx, courseID)
}

// Evaluate forwards rider ratings once a course is done.
func (e *Engine) Evaluate(ctx context.Context, courseID, clientID string, noteChauffeur, noteVehicule int, commentaire string) (*models.Evaluation, error) {
	return e.lifecycle.Evaluate(ctx, courseID, clientID, noteChauffeur, noteVehicule, commentaire)
}
