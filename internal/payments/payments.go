package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cisse-224/clappybackend/internal/models"
	"github.com/cisse-224/clappybackend/internal/trips"
)

// CardProcessor is the provider-side card flow for carte_bancaire courses:
// a hold placed at claim time, captured on confirmation or released on
// cancellation. Implemented by the Stripe client; nil for deployments
// without card support.
type CardProcessor interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Service confirms pending payments produced by course completion and
// tracks provider-side holds per course between claim and settlement.
type Service struct {
	store  trips.CourseStore
	cards  CardProcessor
	logger *slog.Logger

	mu    sync.Mutex
	holds map[string]string // course id -> payment intent id
}

func NewService(store trips.CourseStore, cards CardProcessor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cards: cards, logger: logger, holds: make(map[string]string)}
}

// Hold pre-authorizes the estimated fare when a card-paid course is
// claimed. A no-op without a card processor.
func (s *Service) Hold(ctx context.Context, courseID, clientID string, montant float64) error {
	if s.cards == nil {
		return nil
	}
	intent, err := s.cards.Hold(ctx, int64(montant), "gnf", clientID)
	if err != nil {
		return fmt.Errorf("card hold: %w", err)
	}
	s.mu.Lock()
	s.holds[courseID] = intent
	s.mu.Unlock()
	s.logger.Info("card hold placed", "course_id", courseID, "intent", intent, "montant", montant)
	return nil
}

// ReleaseHold drops the pre-authorization after a cancellation. Best
// effort: a provider error is logged, the local hold is forgotten either
// way.
func (s *Service) ReleaseHold(ctx context.Context, courseID string) {
	s.mu.Lock()
	intent, ok := s.holds[courseID]
	delete(s.holds, courseID)
	s.mu.Unlock()
	if !ok || s.cards == nil {
		return
	}
	if err := s.cards.Cancel(ctx, intent); err != nil {
		s.logger.Warn("card hold release failed", "course_id", courseID, "intent", intent, "error", err)
		return
	}
	s.logger.Info("card hold released", "course_id", courseID, "intent", intent)
}

// Confirm marks a pending payment as paid. Card payments capture the
// provider-side intent first, preferring the hold placed at claim time; a
// capture failure leaves the record pending. A second confirm is rejected.
func (s *Service) Confirm(ctx context.Context, paiementID, transactionID, operateur, numero string) (*models.Paiement, error) {
	p, err := s.store.GetPaiement(ctx, paiementID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentPaid {
		return nil, fmt.Errorf("paiement %s already confirmed: %w", paiementID, models.ErrInvalidTransition)
	}
	if p.Status != models.PaymentPending {
		return nil, fmt.Errorf("paiement %s is %s: %w", paiementID, p.Status, models.ErrInvalidTransition)
	}

	if p.Method == models.PayCarte && s.cards != nil {
		s.mu.Lock()
		intent, held := s.holds[p.CourseID]
		s.mu.Unlock()
		if !held {
			intent = transactionID
		}
		if err := s.cards.Capture(ctx, intent); err != nil {
			return nil, fmt.Errorf("card capture: %w", err)
		}
		if transactionID == "" {
			transactionID = intent
		}
		s.mu.Lock()
		delete(s.holds, p.CourseID)
		s.mu.Unlock()
	}

	now := time.Now()
	p.Status = models.PaymentPaid
	p.TransactionID = transactionID
	p.OperateurMM = operateur
	p.NumeroMM = numero
	p.ConfirmedAt = &now
	if err := s.store.UpdatePaiement(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("paiement confirmed", "paiement_id", p.ID, "montant", p.Montant, "methode", p.Method)
	return p, nil
}
