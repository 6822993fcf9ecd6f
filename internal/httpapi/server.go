package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cisse-224/clappybackend/internal/auth"
	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/geo"
	"github.com/cisse-224/clappybackend/internal/ingest"
	"github.com/cisse-224/clappybackend/internal/match"
	"github.com/cisse-224/clappybackend/internal/payments"
	"github.com/cisse-224/clappybackend/internal/presence"
	"github.com/cisse-224/clappybackend/internal/pricing"
)

// Deps carries everything the API surface needs. Optional collaborators
// (Kafka, Geo) may be nil and their endpoints degrade accordingly.
type Deps struct {
	Engine   *match.Engine
	Payments *payments.Service
	Fleet    *fleet.Registry
	Clients  *fleet.Directory
	Hub      *presence.Hub
	Pricing  *pricing.Table
	Kafka    *ingest.PositionProducer
	Geo      *geo.PositionIndex
	Verifier *auth.Verifier
	Logger   *slog.Logger
}

type Server struct {
	Deps
	mux *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{Deps: d, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/clients", s.handleCreateClient).Methods("POST")
	api.HandleFunc("/chauffeurs", s.handleRegisterChauffeur).Methods("POST")
	api.HandleFunc("/chauffeurs/{id}/statut", s.handleChauffeurStatus).Methods("POST")
	api.HandleFunc("/chauffeurs/proches", s.handleNearbyChauffeurs).Methods("GET")

	api.HandleFunc("/courses", s.handleCreateCourse).Methods("POST")
	api.HandleFunc("/courses/{id}", s.handleGetCourse).Methods("GET")
	api.HandleFunc("/courses/{id}/accepter", s.handleAccepter).Methods("POST")
	api.HandleFunc("/courses/{id}/demarrer", s.handleDemarrer).Methods("POST")
	api.HandleFunc("/courses/{id}/terminer", s.handleTerminer).Methods("POST")
	api.HandleFunc("/courses/{id}/annuler", s.handleAnnuler).Methods("POST")
	api.HandleFunc("/courses/{id}/evaluation", s.handleEvaluation).Methods("POST")

	api.HandleFunc("/paiements/{id}/confirmer", s.handleConfirmerPaiement).Methods("POST")

	api.HandleFunc("/tarifs", s.handleListTarifs).Methods("GET")

	s.mux.HandleFunc("/internal/chauffeurs/positions", s.handlePosition).Methods("POST")
	s.mux.HandleFunc("/ws/chauffeur", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
