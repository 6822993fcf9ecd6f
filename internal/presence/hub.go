package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/models"
	"github.com/cisse-224/clappybackend/internal/observability"
)

// ErrNoSession means the target driver has no live connection.
var ErrNoSession = errors.New("no presence session")

// ClaimHandler receives claim_trip messages read off a driver's socket.
// Implemented by the matching engine.
type ClaimHandler interface {
	Claim(ctx context.Context, courseID, driverID string) (*models.Course, error)
}

// Session is one connected driver. Writes are serialized by the session
// mutex since gorilla/websocket allows a single concurrent writer.
type Session struct {
	conn     *websocket.Conn
	mu       sync.Mutex
	DriverID string
	Group    string
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub is the presence channel: one broadcast group per vehicle class, each
// holding the sessions of currently connected drivers of that class.
type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[*Session]struct{}
	byDriver map[string]*Session

	fleet  *fleet.Registry
	logger *slog.Logger
}

func NewHub(reg *fleet.Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		groups:   make(map[string]map[*Session]struct{}),
		byDriver: make(map[string]*Session),
		fleet:    reg,
		logger:   logger,
	}
}

// Connect admits an authenticated driver. The identity must resolve to an
// approved driver with an assigned vehicle; the session joins exactly the
// group of that vehicle's class for its whole lifetime.
func (h *Hub) Connect(driverID string, conn *websocket.Conn) (*Session, error) {
	d, err := h.fleet.Get(driverID)
	if err != nil {
		return nil, err
	}
	if !d.Approved {
		return nil, models.ErrDriverUnavailable
	}
	v, ok := h.fleet.VehicleOf(driverID)
	if !ok {
		return nil, models.ErrDriverUnavailable
	}
	group := models.PresenceGroup(v.Class)
	s := &Session{conn: conn, DriverID: driverID, Group: group}

	h.mu.Lock()
	if old, ok := h.byDriver[driverID]; ok {
		h.removeLocked(old)
		_ = old.conn.Close()
		observability.DriversConnected.Dec()
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Session]struct{})
	}
	h.groups[group][s] = struct{}{}
	h.byDriver[driverID] = s
	h.mu.Unlock()

	if err := h.fleet.MarkOnline(driverID); err != nil {
		h.logger.Warn("mark online failed", "chauffeur_id", driverID, "error", err)
	}
	observability.DriversConnected.Inc()
	h.logger.Info("chauffeur connected", "chauffeur_id", driverID, "group", group)
	return s, nil
}

// Disconnect removes the session from its group and marks the driver
// offline. This is the only path that takes a driver offline.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	removed := h.removeLocked(s)
	h.mu.Unlock()
	if !removed {
		return
	}
	_ = s.conn.Close()
	h.fleet.MarkOffline(s.DriverID)
	observability.DriversConnected.Dec()
	h.logger.Info("chauffeur disconnected", "chauffeur_id", s.DriverID, "group", s.Group)
}

func (h *Hub) removeLocked(s *Session) bool {
	if cur, ok := h.byDriver[s.DriverID]; !ok || cur != s {
		return false
	}
	delete(h.byDriver, s.DriverID)
	if members, ok := h.groups[s.Group]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.groups, s.Group)
		}
	}
	return true
}

// Broadcast sends an event to every session in the group. A send racing a
// disconnect is tolerated: the failed member is skipped, never an error.
func (h *Hub) Broadcast(group string, v any) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.groups[group]))
	for s := range h.groups[group] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.send(v); err != nil {
			h.logger.Debug("broadcast send skipped", "chauffeur_id", s.DriverID, "error", err)
		}
	}
}

// SendTo delivers an event to a single driver's session.
func (h *Hub) SendTo(driverID string, v any) error {
	h.mu.RLock()
	s, ok := h.byDriver[driverID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(v)
}

// GroupSize reports current membership; used by tests and health output.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

type inboundMessage struct {
	Type     string `json:"type"`
	CourseID string `json:"course_id"`
}

type claimEcho struct {
	Type     string `json:"type"`
	CourseID string `json:"course_id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"erreur,omitempty"`
}

// ReadLoop pumps inbound messages until the connection drops, forwarding
// claim_trip synchronously into the claim path. The result is echoed only
// to the sender. Always ends in Disconnect.
func (h *Hub) ReadLoop(ctx context.Context, s *Session, claims ClaimHandler) {
	defer h.Disconnect(s)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid inbound message", "chauffeur_id", s.DriverID, "error", err)
			continue
		}
		if msg.Type != "claim_trip" {
			continue
		}
		echo := claimEcho{Type: "claim_result", CourseID: msg.CourseID}
		if _, err := claims.Claim(ctx, msg.CourseID, s.DriverID); err != nil {
			echo.Error = err.Error()
		} else {
			echo.Accepted = true
		}
		if err := s.send(echo); err != nil {
			return
		}
	}
}
