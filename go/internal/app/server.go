package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/balance"
	"github.com/mcdev12/donut/go/internal/chat"
	"github.com/mcdev12/donut/go/internal/ledger"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/money"
)

// Server exposes the capabilities over a local HTTP API so that an external
// renderer can drive the client.
func (a *App) Server(addr string) *http.Server {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	handler := c.Handler(a.Router())

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func (a *App) Router() *chi.Mux {
	caps := a.Capabilities()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Post("/notifications", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
			Error   bool   `json:"error"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		caps.ShowNotification(body.Message, body.Error)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
			var body site_client.SendRequest
			if !decodeBody(w, r, &body) {
				return
			}
			if err := caps.SendChat(r.Context(), body.Message); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Delete("/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
				return
			}
			if err := caps.DeleteChatMessage(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/panel/toggle", func(w http.ResponseWriter, r *http.Request) {
			open, err := caps.TogglePanel(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"open": open})
		})
	})

	r.Route("/coinflips/{id}", func(r chi.Router) {
		r.Post("/pending", func(w http.ResponseWriter, r *http.Request) {
			if err := caps.RegisterPendingCoinflip(r.Context(), models.ID(chi.URLParam(r, "id"))); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/notified", func(w http.ResponseWriter, r *http.Request) {
			flipped, err := caps.MarkCoinflipNotified(r.Context(), models.ID(chi.URLParam(r, "id")))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"flipped": flipped})
		})
	})

	r.Route("/balance", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			value, err := caps.Balance()
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"balance": value, "label": money.FormatDollars(value)})
		})
		r.Put("/", a.balanceHandler(caps.SetBalance))
		r.Post("/deduct", a.balanceHandler(caps.DeductBalance))
		r.Post("/add", a.balanceHandler(caps.AddBalance))
	})

	r.Put("/visibility", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Visible bool `json:"visible"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		caps.SetVisible(body.Visible)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/profiles/{id}/open", func(w http.ResponseWriter, r *http.Request) {
		if err := caps.OpenProfile(models.ID(chi.URLParam(r, "id"))); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// balanceHandler reads {"amount": ...}; the amount may be a number or a
// string such as "1.5k".
func (a *App) balanceHandler(apply func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Amount json.RawMessage `json:"amount"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		amount, err := parseAmount(body.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := apply(amount); err != nil {
			writeError(w, err)
			return
		}
		value, _ := a.Capabilities().Balance()
		writeJSON(w, http.StatusOK, map[string]any{"balance": value, "label": money.FormatDollars(value)})
	}
}

func parseAmount(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, money.ErrInvalidAmount
	}
	return money.Parse(s)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *site_client.APIError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, balance.ErrInvalidAmount),
		errors.Is(err, ledger.ErrEmptyEventID):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrSendInFlight), errors.Is(err, chat.ErrDeclined):
		status = http.StatusConflict
	case errors.Is(err, ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrNoProfileSurface):
		status = http.StatusNotImplemented
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
