package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/service/campaign"
)

// ListCampaigns returns a filtered, paginated campaign listing.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := campaign.ListFilter{
		Status: domain.CampaignStatus(q.Get("status")),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// CreateCampaign creates a new draft campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetCampaign returns a single campaign.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// UpdateCampaign modifies a draft campaign.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject       *domain.LocalizedText `json:"subject"`
		Preheader     *domain.LocalizedText `json:"preheader"`
		Content       *domain.LocalizedText `json:"content"`
		RecipientType *domain.RecipientType `json:"recipient_type"`
		RecipientTags *[]string             `json:"recipient_tags"`
		RecipientIDs  *[]string             `json:"recipient_ids"`
		UpdatedBy     string                `json:"updated_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), campaign.UpdateFields{
		Subject:       body.Subject,
		Preheader:     body.Preheader,
		Content:       body.Content,
		RecipientType: body.RecipientType,
		RecipientTags: body.RecipientTags,
		RecipientIDs:  body.RecipientIDs,
		UpdatedBy:     body.UpdatedBy,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// DeleteCampaign removes a draft or cancelled campaign.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// SendCampaign dispatches a campaign immediately. The call blocks until the
// batch completes; the report carries per-recipient failure counts.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	report, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ScheduleCampaign moves a draft campaign to scheduled for a future time.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), body.ScheduledAt); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"scheduled": true})
}

// CancelCampaign cancels a scheduled campaign.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// CampaignStats returns aggregate metrics across sent campaigns.
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.campaigns.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// CampaignEvents applies delivery-event counter increments (opens, clicks,
// bounces, unsubscribes) reported by the mail provider.
func (h *Handlers) CampaignEvents(w http.ResponseWriter, r *http.Request) {
	var delta domain.MetricsDelta
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.campaigns.IncrementMetrics(r.Context(), chi.URLParam(r, "id"), delta); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}
