package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching and classification HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/match", handleMatch(env))
		r.Post("/classify", handleClassify(env))
		r.Post("/mappings/confirm", handleConfirm(env))
		r.Get("/mappings/suggest", handleSuggest(env))
		r.Get("/deals/{dealID}/mappings/stats", handleStats(env))
	})

	return r
}

func handleMatch(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var facility model.ExtractedFacility
		if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if facility.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		result, err := env.Resolver.Resolve(r.Context(), facility)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleClassify(env *env) http.HandlerFunc {
	type request struct {
		DealID string                    `json:"deal_id,omitempty"`
		Items  []model.ExtractedLineItem `json:"items"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, "items are required")
			return
		}

		result, err := env.Classifier.ClassifyBatch(r.Context(), req.Items, req.DealID, cfg.Batch.MaxConcurrent)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleConfirm(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var correction model.Correction
		if err := json.NewDecoder(r.Body).Decode(&correction); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if correction.Label == "" || correction.COACode == "" {
			writeError(w, http.StatusBadRequest, "label and coa_code are required")
			return
		}

		if err := env.Learner.Confirm(r.Context(), correction); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "confirmed"})
	}
}

func handleSuggest(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		if label == "" {
			writeError(w, http.StatusBadRequest, "label is required")
			return
		}

		suggestions, err := env.Learner.Suggest(r.Context(), label, r.URL.Query().Get("deal"), cfg.Matching.TopK)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if suggestions == nil {
			suggestions = []model.Suggestion{}
		}
		writeJSON(w, http.StatusOK, suggestions)
	}
}

func handleStats(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := env.Learner.Stats(r.Context(), chi.URLParam(r, "dealID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
