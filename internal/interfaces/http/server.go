package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Server exposes the daemon operations over a JSON HTTP API.
type Server struct {
	offerSvc   *application.OfferService
	monitorSvc *application.MonitorService
	depositSvc *application.DepositService
	archiveSvc *application.ArchiveService
}

func NewServer(
	offerSvc *application.OfferService, monitorSvc *application.MonitorService,
	depositSvc *application.DepositService, archiveSvc *application.ArchiveService,
) *Server {
	return &Server{offerSvc, monitorSvc, depositSvc, archiveSvc}
}

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)

	m.Route("/v1", func(r chi.Router) {
		r.Get("/balance", s.getBalance)
		r.Get("/history", s.listHistory)

		r.Post("/draft", s.createDraft)
		r.Get("/draft", s.getDraft)
		r.Delete("/draft", s.discardDraft)

		r.Post("/offers", s.createOffer)
		r.Get("/offers", s.listOffers)
		r.Get("/offers/{id}", s.getOffer)
		r.Delete("/offers/{id}", s.cancelOffer)
		r.Post("/offers/{id}/sign", s.signOffer)
		r.Post("/offers/{id}/broadcast", s.broadcastOffer)

		r.Get("/txs", s.listMonitoredTxs)
		r.Get("/txs/archived", s.listArchivedTxs)
		r.Post("/txs/refresh", s.refreshMonitoredTxs)
		r.Post("/txs/cleanup", s.cleanupArchivedTxs)
	})

	return m
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	renderJSON(w, statusForErr(err), map[string]string{"error": err.Error()})
}

func statusForErr(err error) int {
	var broadcastErr *ports.BroadcastError
	switch {
	case errors.Is(err, application.ErrDraftNotFound),
		errors.Is(err, application.ErrOfferNotFound),
		errors.Is(err, ports.ErrTxNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrMissingRecipient),
		errors.Is(err, domain.ErrUnknownSigner),
		errors.Is(err, domain.ErrQuorumNotMet),
		errors.Is(err, domain.ErrInvalidQuorum),
		errors.Is(err, ports.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOfferBroadcasting):
		return http.StatusConflict
	case errors.As(err, &broadcastErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
