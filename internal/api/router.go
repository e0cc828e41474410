package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vodpack/internal/asset"
	"vodpack/internal/config"
	"vodpack/internal/pipeline"
)

type ApiManagerCtx struct {
	logger   zerolog.Logger
	config   *config.Server
	store    *asset.StoreCtx
	pipeline *pipeline.ManagerCtx
}

func New(conf *config.Server, store *asset.StoreCtx, pipe *pipeline.ManagerCtx) *ApiManagerCtx {
	return &ApiManagerCtx{
		logger:   log.With().Str("module", "api").Logger(),
		config:   conf,
		store:    store,
		pipeline: pipe,
	}
}

func (a *ApiManagerCtx) Mount(r *chi.Mux) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", a.Upload)
		r.Get("/assets", a.ListAssets)
		r.Get("/assets/{id}", a.GetAsset)
	})
}

func (a *ApiManagerCtx) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Err(err).Msg("unable to write response")
	}
}

func (a *ApiManagerCtx) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

// ListAssets returns the catalog of committed assets, newest first.
func (a *ApiManagerCtx) ListAssets(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.store.List())
}

// GetAsset returns the manifest for one asset id.
func (a *ApiManagerCtx) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	manifest, err := a.store.Load(id)
	if err != nil {
		a.writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	a.writeJSON(w, http.StatusOK, manifest)
}
