package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/metrics"
	"github.com/peptide-index/stockwatch/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job-trigger HTTP server",
	Long:  "Exposes one endpoint per pipeline job for the external scheduler and manual operator triggers, plus health, metrics, and run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Server.Secret == "" && cfg.Production() {
			return eris.New("server.secret must be set in production")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*.peptide-index.com"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Group(func(r chi.Router) {
			r.Use(requireSecret(cfg.Server.Secret))

			r.Post("/jobs/check", jobHandler(env.checker.Run))
			r.Post("/jobs/verify", jobHandler(env.verifier.Run))
			r.Post("/jobs/review", jobHandler(env.reviewer.Run))

			r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
				runs, err := env.store.ListRuns(req.Context(), 50)
				if err != nil {
					zap.L().Error("listing runs failed", zap.Error(err))
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing runs failed"})
					return
				}
				writeJSON(w, http.StatusOK, runs)
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// jobHandler adapts a pipeline job to an HTTP trigger. Job errors are
// returned as a failed summary rather than a bare 500 so operators see
// the structured counts either way.
func jobHandler(run func(ctx context.Context, triggeredBy string) (model.RunSummary, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		triggeredBy := req.URL.Query().Get("trigger")
		if triggeredBy == "" {
			triggeredBy = "schedule"
		}

		summary, err := run(req.Context(), triggeredBy)
		if err != nil {
			zap.L().Error("job failed", zap.String("trigger", triggeredBy), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, model.RunSummary{
				Success:     false,
				TriggeredBy: triggeredBy,
				Timestamp:   time.Now().UTC(),
			})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// requireSecret enforces the shared-secret bearer token. An empty
// configured secret leaves the endpoints open; serve refuses that
// combination in production at startup.
func requireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, req)
				return
			}
			token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
