package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cisse-224/clappybackend/internal/auth"
	"github.com/cisse-224/clappybackend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Erreur string `json:"erreur"`
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Everything in
// the taxonomy is a 4xx returned to the caller; only persistence failures
// surface as 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Erreur: err.Error()})
	case errors.Is(err, models.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, errorBody{Erreur: err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Erreur: err.Error()})
	case errors.Is(err, models.ErrDriverUnavailable):
		writeJSON(w, http.StatusConflict, errorBody{Erreur: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Erreur: "internal error"})
	}
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, roles ...auth.Role) (auth.Identity, bool) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	for _, role := range roles {
		if id.Role == role {
			return id, true
		}
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return auth.Identity{}, false
}

type createClientRequest struct {
	Nom       string `json:"nom"`
	Telephone string `json:"telephone"`
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	if req.Telephone == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: "telephone required"})
		return
	}
	c := models.Client{ID: uuid.NewString(), Nom: req.Nom, Telephone: req.Telephone}
	if err := s.Clients.Register(c); err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Erreur: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type registerChauffeurRequest struct {
	Nom          string         `json:"nom"`
	Telephone    string         `json:"telephone"`
	NumeroPermis string         `json:"numero_permis"`
	EstApprouve  bool           `json:"est_approuve"`
	Vehicule     models.Vehicle `json:"vehicule"`
}

func (s *Server) handleRegisterChauffeur(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	var req registerChauffeurRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	d := models.Driver{
		ID:           uuid.NewString(),
		Nom:          req.Nom,
		Telephone:    req.Telephone,
		NumeroPermis: req.NumeroPermis,
		Approved:     req.EstApprouve,
	}
	if err := s.Fleet.Register(d, req.Vehicule); err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Erreur: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type statusRequest struct {
	Statut models.DriverStatus `json:"statut"`
}

// handleChauffeurStatus covers voluntary pauses; on_trip remains owned by
// the claim path and offline by presence disconnect.
func (s *Server) handleChauffeurStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleChauffeur, auth.RoleAdmin)
	if !ok {
		return
	}
	target := mux.Vars(r)["id"]
	if id.Role == auth.RoleChauffeur && id.UserID != target {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	if req.Statut != models.DriverAvailable && req.Statut != models.DriverPaused {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: "statut must be available or paused"})
		return
	}
	if err := s.Fleet.SetStatus(target, req.Statut); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": string(req.Statut)})
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleClient, auth.RoleAdmin)
	if !ok {
		return
	}
	var req models.CourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	if id.Role == auth.RoleClient {
		req.ClientID = id.UserID
	}
	c, err := s.Engine.CreateCourse(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := s.Engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAccepter(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleChauffeur)
	if !ok {
		return
	}
	c, err := s.Engine.Claim(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDemarrer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleChauffeur)
	if !ok {
		return
	}
	c, err := s.Engine.Start(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type terminerRequest struct {
	TarifFinal float64 `json:"tarif_final,omitempty"`
}

func (s *Server) handleTerminer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleChauffeur)
	if !ok {
		return
	}
	var req terminerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
			return
		}
	}
	c, pay, err := s.Engine.Complete(r.Context(), mux.Vars(r)["id"], id.UserID, req.TarifFinal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": c, "paiement": pay})
}

func (s *Server) handleAnnuler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleClient, auth.RoleChauffeur, auth.RoleAdmin)
	if !ok {
		return
	}
	courseID := mux.Vars(r)["id"]
	c, err := s.Engine.Get(r.Context(), courseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	switch id.Role {
	case auth.RoleClient:
		if c.ClientID != id.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	case auth.RoleChauffeur:
		if c.ChauffeurID != id.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	cancelled, err := s.Engine.Cancel(r.Context(), courseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

type evaluationRequest struct {
	NoteChauffeur int    `json:"note_chauffeur"`
	NoteVehicule  int    `json:"note_vehicule"`
	Commentaire   string `json:"commentaire,omitempty"`
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, auth.RoleClient)
	if !ok {
		return
	}
	var req evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	e, err := s.Engine.Evaluate(r.Context(), mux.Vars(r)["id"], id.UserID, req.NoteChauffeur, req.NoteVehicule, req.Commentaire)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidTransition) {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type confirmerRequest struct {
	TransactionID string `json:"identifiant_transaction"`
	Operateur     string `json:"operateur_mobile_money,omitempty"`
	Numero        string `json:"numero_mobile_money,omitempty"`
}

func (s *Server) handleConfirmerPaiement(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, auth.RoleClient, auth.RoleAdmin); !ok {
		return
	}
	var req confirmerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	p, err := s.Payments.Confirm(r.Context(), mux.Vars(r)["id"], req.TransactionID, req.Operateur, req.Numero)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListTarifs(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	classes := []models.VehicleClass{models.ClassEconomique, models.ClassClimatiser, models.ClassVIP, models.ClassMoto}
	out := make([]models.Tarif, 0, len(classes))
	for _, cl := range classes {
		if t, ok := s.Pricing.Get(cl); ok {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNearbyChauffeurs(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.Geo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Erreur: "position index not configured"})
		return
	}
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: "lat and lon are required"})
		return
	}
	positions, err := s.Geo.Nearby(r.Context(), lat, lon, 5000, 10)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Erreur: "position lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// handlePosition ingests one GPS sample from the driver app. Samples go to
// Kafka when configured and straight into the index otherwise.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: err.Error()})
		return
	}
	if pos.DriverID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Erreur: "chauffeur_id required"})
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.Publish(pos); err != nil {
			s.Logger.Warn("position publish failed", "chauffeur_id", pos.DriverID, "error", err)
		}
	} else if s.Geo != nil {
		if err := s.Geo.Record(r.Context(), pos); err != nil {
			s.Logger.Warn("position record failed", "chauffeur_id", pos.DriverID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

// handleWS upgrades an authenticated chauffeur connection and ties its
// lifetime to presence-group membership.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.identityFromRequest(r)
	if err != nil || id.Role != auth.RoleChauffeur {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	session, err := s.Hub.Connect(id.UserID, conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	s.Hub.ReadLoop(r.Context(), session, s.Engine)
}
