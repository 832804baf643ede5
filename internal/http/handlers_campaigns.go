package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"charity/internal/core"
)

// campaignView adds the funded fraction used for progress bars.
type campaignView struct {
	core.Campaign
	Progress float64 `json:"progress"`
}

func newCampaignView(c core.Campaign) campaignView {
	return campaignView{Campaign: c, Progress: c.Progress()}
}

func newCampaignViews(cs []core.Campaign) []campaignView {
	out := make([]campaignView, len(cs))
	for i, c := range cs {
		out[i] = newCampaignView(c)
	}
	return out
}

// newCampaignDetailView keeps a deleted campaign as null.
func newCampaignDetailView(c *core.Campaign) *campaignView {
	if c == nil {
		return nil
	}
	v := newCampaignView(*c)
	return &v
}

func categoryParam(r *http.Request) string {
	if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
		return c
	}
	return core.AllCategories
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.deps.Catalog.Campaigns(r.Context(), categoryParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCampaignViews(campaigns))
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Catalog.Campaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCampaignView(c))
}

func (s *Server) handleCampaignDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := s.deps.Catalog.CampaignDonations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

// campaignURL is the address a scanned share code opens.
func campaignURL(r *http.Request, id string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		scheme = p
	}
	return fmt.Sprintf("%s://%s/api/campaigns/%s", scheme, r.Host, url.PathEscape(id))
}

func (s *Server) handleCampaignQRCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Catalog.Campaign(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	png, err := qrcode.Encode(campaignURL(r, id), qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not render share code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}
