package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"charity/internal/core"
	applog "charity/internal/log"
	"charity/internal/services"
)

type donationRequest struct {
	DonorName string         `json:"donorName"`
	Amount    flexibleAmount `json:"amount"`
	Message   string         `json:"message"`
}

// donationResponse reports the outcome of a submission. Step and Partial
// are set for remote failures so the client can tell whether the donation
// was partly stored.
type donationResponse struct {
	Outcome  core.Outcome   `json:"outcome"`
	Message  string         `json:"message"`
	Donation *core.Donation `json:"donation,omitempty"`
	Step     services.Step  `json:"step,omitempty"`
	Partial  bool           `json:"partial,omitempty"`
}

type summaryResponse struct {
	Total      float64              `json:"total"`
	Categories []core.CategoryShare `json:"categories"`
}

func newSummaryResponse(summary []core.CategoryAmount) summaryResponse {
	return summaryResponse{Total: core.Total(summary), Categories: core.Shares(summary)}
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDonationOutcome(w, core.Donation{}, err)
		return
	}

	input := core.DonationInput{DonorName: req.DonorName, Amount: string(req.Amount), Message: req.Message}
	d, err := s.deps.Donations.RecordDonation(r.Context(), input, chi.URLParam(r, "id"), userID)
	if err != nil && core.Classify(err) == core.OutcomeRemoteFailure {
		fields := applog.LogFields{applog.FieldCampaignID: chi.URLParam(r, "id"), applog.FieldUserID: userID}
		applog.LogError(r.Context(), "Donation failed", err, applog.ComponentDonation, applog.OpRecord, fields)
	}
	writeDonationOutcome(w, d, err)
}

func writeDonationOutcome(w http.ResponseWriter, d core.Donation, err error) {
	outcome := core.Classify(err)
	resp := donationResponse{Outcome: outcome, Message: outcome.Message()}

	status := http.StatusCreated
	switch outcome {
	case core.OutcomeSuccess:
		resp.Donation = &d
	case core.OutcomeInvalidInput:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusBadGateway
		var recErr *services.RecordError
		if errors.As(err, &recErr) {
			resp.Step = recErr.Step
			resp.Partial = recErr.Partial
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleMyDonations(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	donations, err := s.deps.Catalog.DonationHistory(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

func (s *Server) handleMySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if s.deps.Summaries != nil {
		if cached, hit := s.deps.Summaries.Get(userID); hit {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, newSummaryResponse(cached))
			return
		}
	}

	summary, err := s.deps.Summary.Summary(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.deps.Summaries != nil {
		s.deps.Summaries.Set(userID, summary)
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}
