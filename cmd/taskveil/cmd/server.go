package cmd

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/taskveil/api"
	"github.com/jmcleod/taskveil/hub"
	"github.com/jmcleod/taskveil/internal/util"
	"github.com/jmcleod/taskveil/media"
	"github.com/jmcleod/taskveil/storage"
	"github.com/jmcleod/taskveil/web"
)

var (
	port        int
	dataDir     string
	tlsCert     string
	tlsKey      string
	tokenSecret string
	adminUser   string
	corsOrigins []string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the taskveil server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.Kitchen,
		}))
		slog.SetDefault(logger)

		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		secret := []byte(tokenSecret)
		if env := os.Getenv("TASKVEIL_TOKEN_SECRET"); len(secret) == 0 && env != "" {
			secret = []byte(env)
		}
		if len(secret) == 0 {
			// No identity provider secret configured: generate one for
			// this run and print it so dev tokens can be minted.
			random, err := util.RandomBytes(32)
			if err != nil {
				return fmt.Errorf("generating token secret: %w", err)
			}
			secret = []byte(base64.StdEncoding.EncodeToString(random))
			logger.Warn("no token secret configured, generated one for this run",
				"secret", string(secret))
		}

		store, err := storage.Open(dataDir + "/taskveil.db")
		if err != nil {
			return fmt.Errorf("failed to open relational store: %w", err)
		}
		defer store.Close()

		mediaStore, err := media.Open(dataDir + "/media.db")
		if err != nil {
			return fmt.Errorf("failed to open media store: %w", err)
		}
		defer mediaStore.Close()

		if adminUser != "" {
			if err := store.SetAdmin(cmd.Context(), adminUser, true); err != nil {
				logger.Warn("could not grant admin, user must sync first",
					"user_id", adminUser, "error", err)
			}
		}

		a := api.New(store, mediaStore, hub.New(hub.WithLogger(logger)),
			api.NewTokenVerifier(secret), api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(chimiddleware.RequestID)
		r.Use(chimiddleware.Logger)
		r.Use(chimiddleware.Recoverer)
		r.Use(api.SecurityHeaders)
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Cache-Control", "Pragma"},
			AllowCredentials: true,
		}).Handler)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())
		r.Get("/media/{mediaID}", a.ServeMedia)
		r.Mount("/ws", a.WebsocketHandler())

		webHandler, err := web.Handler()
		if err != nil {
			return err
		}
		r.Handle("/*", webHandler)

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			logger.Info("using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("server listening", "port", port, "data_dir", dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().StringVar(&tokenSecret, "token-secret", "", "Shared secret for verifying identity tokens (or TASKVEIL_TOKEN_SECRET)")
	serverCmd.Flags().StringVar(&adminUser, "admin-user", "", "User ID to grant admin on startup")
	serverCmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "Allowed CORS origins (repeatable)")
}
