package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/service/subscriber"
)

// Subscribe handles the public subscribe form. An already-active email
// gets the same success response as a new one; the endpoint never reveals
// whether an address is on the list.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var in subscriber.SubscribeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The public form may not set an explicit source.
	if in.Source == "" {
		in.Source = domain.SourceWebsite
	}

	sub, created, err := h.subscribers.Subscribe(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]interface{}{
		"subscribed": true,
		"locale":     sub.Locale,
	})
}

// Unsubscribe handles both the GET link from email footers and the POST
// confirmation. The response is identical for unknown addresses and bad
// tokens.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost && email == "" {
		var body struct {
			Email string `json:"email"`
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			email, token = body.Email, body.Token
		}
	}
	if email == "" || token == "" {
		respondError(w, http.StatusBadRequest, "email and token are required")
		return
	}

	ok, err := h.subscribers.Unsubscribe(r.Context(), email, token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"unsubscribed": ok})
}

// VerifyEmail confirms a pending subscription via the emailed token.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscribers.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"verified": true,
		"locale":   sub.Locale,
	})
}

// ListSubscribers returns a filtered, paginated subscriber listing.
func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	page, err := h.subscribers.List(r.Context(), subscriberFilter(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func subscriberFilter(r *http.Request) subscriber.Filter {
	q := r.URL.Query()
	f := subscriber.Filter{
		Status: domain.SubscriberStatus(q.Get("status")),
		Source: domain.SubscriberSource(q.Get("source")),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
	}
	if tags := q.Get("tags"); tags != "" {
		f.Tags = strings.Split(tags, ",")
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f
}

// SubscriberStats returns aggregate counts for the dashboard.
func (h *Handlers) SubscriberStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subscribers.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// SubscriberTags returns the distinct tag list.
func (h *Handlers) SubscriberTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.subscribers.AllTags(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// BulkUpdateStatus applies a status change to a set of subscriber ids.
func (h *Handlers) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs    []string                `json:"ids"`
		Status domain.SubscriberStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changed, err := h.subscribers.BulkUpdateStatus(r.Context(), body.IDs, body.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": changed})
}

// ImportSubscribers runs a bulk import from a JSON row array.
func (h *Handlers) ImportSubscribers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rows []subscriber.ImportRow   `json:"rows"`
		Opts subscriber.ImportOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.subscribers.Import(r.Context(), body.Rows, body.Opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ExportSubscribers streams the matching subscribers as CSV.
func (h *Handlers) ExportSubscribers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.subscribers.Export(r.Context(), subscriberFilter(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="subscribers.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"email", "name", "status", "tags", "subscribed_at"})
	for _, row := range rows {
		cw.Write([]string{row.Email, row.Name, row.Status, row.Tags, row.SubscribedAt})
	}
	cw.Flush()
}
