package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ecosort/internal/handlers"
	"github.com/lehigh-university-libraries/ecosort/internal/labeling"
	"github.com/lehigh-university-libraries/ecosort/internal/metrics"
	"github.com/lehigh-university-libraries/ecosort/internal/storage"
)

func newServeCmd() *cobra.Command {
	var (
		port     string
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the classification service",
		Long: `Starts the HTTP classification service.

POST /api/classify accepts a multipart form with one "image" part (PNG or JPEG,
at most 5MB) and answers {"classification": ..., "confidence": ...}. The
backend is a local ONNX model or a vision-capable LLM (Gemini, Ollama or
OpenAI), chosen with --provider or CLASSIFIER_PROVIDER.`,
		Example: `  # Serve a local model on the default port 8000
  ecosort serve

  # Use Ollama on a custom port
  ecosort serve --provider ollama --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = getEnv("PORT", "8000")
			}

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)

			// A service that fails to load still starts and answers every
			// classify request with "Model or labels not loaded".
			var classifier handlers.Classifier
			service, err := newLabelingService(provider, model)
			if err != nil {
				slog.Error("Failed to load model or labels", "err", err)
			} else {
				defer service.Close()
				classifier = service
				provider = service.Provider()
				slog.Info("Classifier ready",
					"provider", service.Provider(),
					"model", service.Model(),
					"labels", len(service.Labels()))
			}

			gin.SetMode(gin.ReleaseMode)
			router := gin.New()
			router.Use(gin.Recovery())

			handler := handlers.New(classifier,
				handlers.WithFrontendURL(getEnv("FRONTEND_URL", "http://localhost:5173")),
				handlers.WithMetrics(m, reg),
				handlers.WithProvider(provider))
			handler.RegisterRoutes(router)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Ecosort service available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (env PORT, default 8000)")
	cmd.Flags().StringVar(&provider, "provider", "", "Backend: onnx, gemini, ollama or openai (env CLASSIFIER_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "Model path (onnx) or model name (LLM providers)")

	return cmd
}

func newLabelingService(provider, model string) (*labeling.Service, error) {
	labels, err := labeling.LoadLabels(getEnv("LABELS_PATH", "labels.txt"))
	if err != nil {
		return nil, err
	}

	cacheSize, err := strconv.Atoi(getEnv("CACHE_SIZE", "256"))
	if err != nil {
		slog.Warn("Invalid CACHE_SIZE, disabling prediction cache", "err", err)
		cacheSize = 0
	}
	cache, err := storage.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return labeling.NewService(provider, model, labels, labeling.WithCache(cache))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
