package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
	"github.com/cloudx-io/assetauction/metrics"
	"github.com/cloudx-io/assetauction/receipt"
)

// newRouter builds the read-only HTTP side server.
func newRouter(e *engine.Engine, notary *receipt.Notary, m *metrics.Collector, hub *Hub, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"paused": e.Paused(req.Context()),
		})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Method(http.MethodGet, "/events", hub)

	r.Route("/auctions/{id}", func(api chi.Router) {
		api.Get("/", func(w http.ResponseWriter, req *http.Request) {
			id, ok := auctionID(w, req)
			if !ok {
				return
			}
			a, err := e.GetAuction(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, a)
		})

		api.Get("/receipt", func(w http.ResponseWriter, req *http.Request) {
			id, ok := auctionID(w, req)
			if !ok {
				return
			}
			if notary == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipts are disabled"})
				return
			}
			rc, found := notary.Receipt(id)
			if !found {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no receipt for auction"})
				return
			}
			writeJSON(w, http.StatusOK, rc)
		})
	})

	logger.Debug().Msg("http routes registered")
	return r
}

func auctionID(w http.ResponseWriter, req *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid auction id"})
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "error_kind": core.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
