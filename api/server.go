package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"dealmatch/classifier"
	"dealmatch/config"
	"dealmatch/metrics"
	"dealmatch/models"
	"dealmatch/services"
	"dealmatch/storage"
)

// Server is the machine-readable surface for downstream digest, export, and
// dashboard consumers. It renders no pages.
type Server struct {
	Router     chi.Router
	cfg        *config.Config
	store      *storage.PostgresStore
	matches    *services.MatchService
	quota      *services.QuotaGuard
	classifier classifier.Classifier
	log        zerolog.Logger
}

// NewServer wires the routes.
func NewServer(cfg *config.Config, store *storage.PostgresStore, matches *services.MatchService, quota *services.QuotaGuard, cls classifier.Classifier, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		matches:    matches,
		quota:      quota,
		classifier: cls,
		log:        logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/dealers/{dealerID}", func(r chi.Router) {
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Get("/matches", s.handleListMatches)
		r.Get("/matches/{matchID}/explanation", s.handleExplainMatch)
		r.Get("/learning", s.handleLearningStage)
		r.Post("/views", s.handleConsumeView)
	})
	r.Post("/interactions", s.handleRecordInteraction)
	r.Get("/listings/{listingID}/assessment", s.handleAssessListing)

	s.Router = r
	return s
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("api listening")
	return srv.ListenAndServe()
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}

	prefs, err := s.store.GetDealerPreferences(r.Context(), dealerID)
	if err != nil {
		s.internalError(w, err, "get preferences")
		return
	}
	if prefs == nil {
		writeError(w, http.StatusNotFound, "no preferences saved")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}

	var prefs models.DealerPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	prefs.DealerID = dealerID
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpsertDealerPreferences(r.Context(), &prefs); err != nil {
		s.internalError(w, err, "save preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}

	matches, err := s.store.ListMatchesForDealer(r.Context(), dealerID, 50, 0)
	if err != nil {
		s.internalError(w, err, "list matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleExplainMatch(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}
	matchID, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	match, err := s.store.GetMatchByID(r.Context(), matchID)
	if err != nil {
		s.internalError(w, err, "get match")
		return
	}
	// Ownership check: a match belongs to exactly one dealer.
	if match == nil || match.DealerID != dealerID {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	listing, err := s.store.GetListingForMatch(r.Context(), matchID)
	if err != nil || listing == nil {
		s.internalError(w, err, "get listing for match")
		return
	}

	// Explanation must never fail over a missing profile; nil renders the
	// "personalization not engaged" wording.
	learned, err := s.store.GetLearnedPreferences(r.Context(), dealerID)
	if err != nil {
		learned = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"match_id":    matchID,
		"explanation": services.Explain(match, listing, learned),
	})
}

func (s *Server) handleLearningStage(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}

	learned, err := s.store.GetLearnedPreferences(r.Context(), dealerID)
	if err != nil {
		s.internalError(w, err, "get learned preferences")
		return
	}
	writeJSON(w, http.StatusOK, services.StageFor(learned))
}

func (s *Server) handleConsumeView(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := s.dealerID(w, r)
	if !ok {
		return
	}
	plan := s.cfg.PlanByID(r.URL.Query().Get("plan"))

	decision, err := s.quota.CheckAndConsume(r.Context(), dealerID, plan)
	if err != nil {
		s.internalError(w, err, "check quota")
		return
	}
	if !decision.Allowed {
		metrics.QuotaDenied.WithLabelValues(plan.ID).Inc()
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var i models.Interaction
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if i.DealerID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "dealer_id required")
		return
	}

	if err := s.matches.RecordInteraction(r.Context(), &i); err != nil {
		if errors.Is(err, models.ErrInvalidInteractionType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, err, "record interaction")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": i.ID})
}

func (s *Server) handleAssessListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := s.store.GetListingByID(r.Context(), listingID)
	if err != nil {
		s.internalError(w, err, "get listing")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	assessment, err := s.classifier.Classify(r.Context(), listing)
	if err != nil {
		s.internalError(w, err, "classify listing")
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) dealerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "dealerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dealer id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, err error, op string) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
