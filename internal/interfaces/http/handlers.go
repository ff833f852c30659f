package httpinterface

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/application"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

var coinSelectionByName = map[string]int{
	"largest_first":  application.CoinSelectionLargestFirst,
	"smallest_first": application.CoinSelectionSmallestFirst,
	"near_exact":     application.CoinSelectionNearExact,
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.offerSvc.GetBalance(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newBalanceView(balance))
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.offerSvc.GetHistory(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newCompletedTxViews(history))
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string `json:"destination"`
		Amount      int64  `json:"amount"`
		FeeRate     string `json:"fee_rate"`
		Strategy    string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, application.ErrMissingRecipient)
		return
	}

	feeRate := decimal.Zero
	if body.FeeRate != "" {
		parsed, err := decimal.NewFromString(body.FeeRate)
		if err != nil {
			renderJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid fee rate: %s", body.FeeRate),
			})
			return
		}
		feeRate = parsed
	}

	strategy, ok := coinSelectionByName[body.Strategy]
	if !ok && body.Strategy != "" {
		renderJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown strategy: %s", body.Strategy),
		})
		return
	}

	draft, err := s.offerSvc.CreateDraft(
		r.Context(), body.Destination, btcutil.Amount(body.Amount),
		feeRate, strategy,
	)
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, newDraftView(draft))
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.offerSvc.GetDraft()
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newDraftView(draft))
}

func (s *Server) discardDraft(w http.ResponseWriter, r *http.Request) {
	s.offerSvc.DiscardDraft()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := s.offerSvc.CreateOffer(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, s.offerViewFor(r, offer.ID))
}

func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.offerSvc.GetOffers(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}

	views := make([]offerView, 0, len(offers))
	for _, offer := range offers {
		remaining, err := s.offerSvc.RemainingSigners(r.Context(), offer.ID)
		if err != nil {
			renderErr(w, err)
			return
		}
		views = append(views, newOfferView(offer, remaining))
	}
	renderJSON(w, http.StatusOK, views)
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.offerSvc.GetOffer(r.Context(), id); err != nil {
		renderJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	renderJSON(w, http.StatusOK, s.offerViewFor(r, id))
}

func (s *Server) signOffer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing signer fingerprint",
		})
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.offerSvc.SignOffer(r.Context(), id, body.Fingerprint); err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.offerViewFor(r, id))
}

func (s *Server) broadcastOffer(w http.ResponseWriter, r *http.Request) {
	txid, err := s.offerSvc.BroadcastOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

func (s *Server) cancelOffer(w http.ResponseWriter, r *http.Request) {
	if err := s.offerSvc.CancelOffer(r.Context(), chi.URLParam(r, "id")); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMonitoredTxs(w http.ResponseWriter, r *http.Request) {
	txs, err := s.monitorSvc.ListActive(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newMonitoredTxViews(txs))
}

func (s *Server) listArchivedTxs(w http.ResponseWriter, r *http.Request) {
	txs, err := s.archiveSvc.ListArchived(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newMonitoredTxViews(txs))
}

func (s *Server) refreshMonitoredTxs(w http.ResponseWriter, r *http.Request) {
	if err := s.depositSvc.Refresh(r.Context()); err != nil {
		renderErr(w, err)
		return
	}
	if err := s.monitorSvc.RunCycle(); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cleanupArchivedTxs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RetentionDays <= 0 {
		renderJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing or invalid retention days",
		})
		return
	}

	count, err := s.archiveSvc.Cleanup(r.Context(), body.RetentionDays)
	if err != nil {
		renderErr(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"removed": count})
}

func (s *Server) offerViewFor(r *http.Request, id string) offerView {
	offer, err := s.offerSvc.GetOffer(r.Context(), id)
	if err != nil {
		return offerView{ID: id}
	}
	remaining, _ := s.offerSvc.RemainingSigners(r.Context(), id)
	return newOfferView(offer, remaining)
}
