// internal/adapters/http_server/handlers.go
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"review_notifier/internal/app"
	"review_notifier/internal/domain"
)

// Handlers serves the trigger endpoints. Deliveries is nil when no delivery
// log is configured, and its route is then not mounted.
type Handlers struct {
	Poller     *app.PollService
	Deliveries *app.DeliveryService
	SecretKey  string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(KeyAuth(h.SecretKey))

		r.Get("/v1/reviews/{platform}", h.poll)
		r.Post("/v1/reviews/{platform}", h.poll)

		// entry points kept from the cloud-function deployment
		r.HandleFunc("/http_apple_reviews", h.pollPlatform(domain.Apple))
		r.HandleFunc("/http_android_reviews", h.pollPlatform(domain.Android))

		if h.Deliveries != nil {
			r.Get("/v1/deliveries", h.listDeliveries)
		}
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal response failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write response body failed")
	}
}

func (h *Handlers) poll(w http.ResponseWriter, r *http.Request) {
	p, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown platform")
		return
	}
	h.pollPlatform(p)(w, r)
}

func (h *Handlers) pollPlatform(p domain.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.Poller.Poll(r.Context(), p)
		switch {
		case errors.Is(err, domain.ErrUnknownPlatform):
			writeProblem(w, http.StatusNotFound, "Not Found", "platform not configured")
			return
		case err != nil:
			log.Error().Err(err).Str("platform", string(p)).Str("run_id", res.RunID).Msg("poll failed")
			writeProblem(w, http.StatusBadGateway, "Bad Gateway", err.Error())
			return
		}
		writeJSON(w, res)
	}
}

func (h *Handlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	q := domain.DeliveryQuery{Limit: app.DefaultDeliveryLimit}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxDeliveryLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		q.Limit = l
	}
	if ps := r.URL.Query().Get("platform"); ps != "" {
		p, err := domain.ParsePlatform(ps)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid platform", "platform must be apple or android")
			return
		}
		q.Platform = &p
	}

	out, err := h.Deliveries.Recent(r.Context(), q)
	if err != nil {
		log.Error().Err(err).Msg("list deliveries failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not list deliveries")
		return
	}
	writeJSON(w, out)
}
