package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatwebui "github.com/MegaGrindStone/chat-web-ui"
	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/handlers"
	"github.com/MegaGrindStone/chat-web-ui/internal/services"
	"github.com/spf13/cobra"
)

type app struct {
	cfgDir     string
	cfgPath    string
	backendURL string

	cfg    config
	logger *slog.Logger
}

const errLoggerKey = "err"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "chatui",
		Short: "Web and terminal front-end for the chat backend",
		Long: `chatui serves a small web UI for the chat backend and can send single messages from the
terminal. Replies stream from the backend, or straight from a model provider when one is
configured; either way they are stored in the backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "",
		"config file (default is $XDG_CONFIG_HOME/chatui/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend URL, overrides the config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web UI (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.serve(cmd.Context())
			},
		},
		newSendCmd(a),
		newModelsCmd(a),
		newLastCmd(a),
	)

	return rootCmd
}

func (a *app) init() error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	a.cfgDir = filepath.Join(cfgDir, "chatui")
	if err := os.MkdirAll(a.cfgDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if a.cfgPath == "" {
		a.cfgPath = filepath.Join(a.cfgDir, "config.yaml")
	}

	a.cfg, err = loadConfig(a.cfgPath)
	if err != nil {
		return err
	}
	if a.backendURL != "" {
		a.cfg.BackendURL = a.backendURL
	}

	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: a.cfg.slogLevel()}))
	return nil
}

func (a *app) client() *backend.Client {
	return backend.NewClient(a.cfg.BackendURL, a.cfg.backendOptions(a.logger)...)
}

func (a *app) localStore() (services.LocalStore, error) {
	return services.NewLocalStore(filepath.Join(a.cfgDir, "store.db"))
}

func (a *app) serve(ctx context.Context) error {
	client := a.client()
	streamer, err := a.cfg.Stream.streamer(a.cfg, client, a.logger)
	if err != nil {
		return fmt.Errorf("error creating streamer: %w", err)
	}

	local, err := a.localStore()
	if err != nil {
		return err
	}
	defer local.Close()

	m, err := handlers.NewMain(client, local, a.logger,
		handlers.WithStreamer(streamer),
		handlers.WithThrottle(a.cfg.Throttle),
	)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(chatwebui.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/login", m.HandleLogin)
	mux.HandleFunc("/logout", m.HandleLogout)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/chats/abort", m.HandleAbort)
	mux.HandleFunc("/chats/delete", m.HandleDeleteChat)
	mux.HandleFunc("/chats/title", m.HandleRenameChat)
	mux.HandleFunc("/search", m.HandleSearch)
	mux.HandleFunc("/models", m.HandleModels)
	mux.HandleFunc("/models/preload", m.HandlePreloadModel)
	mux.HandleFunc("/sse", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			a.logger.Error("Failed to shutdown sse server", slog.String(errLoggerKey, err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		a.logger.Info("Server starting",
			slog.String("port", a.cfg.Port),
			slog.String("backend", a.cfg.BackendURL))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		a.logger.Info("Start shutdown", slog.String("signal", sig.String()))

	case <-ctx.Done():
		a.logger.Info("Start shutdown", slog.String("reason", ctx.Err().Error()))
	}

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Gracefully shutdown the server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Graceful shutdown failed", slog.String(errLoggerKey, err.Error()))
		if err := srv.Close(); err != nil {
			a.logger.Error("Forcing server close", slog.String(errLoggerKey, err.Error()))
		}
	}
	return nil
}
