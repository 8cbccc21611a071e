// ABOUTME: Entry point for linku-chat, a terminal client for LinkU conversations
// ABOUTME: Runs the sync engine against the marketplace API and push channel

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/config"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/pending"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/session"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _ _       _          _           _           _
| (_)_ __ | | ___   _| |      ___| |__   __ _| |_
| | | '_ \| |/ / | | | |_____/ __| '_ \ / _' | __|
| | | | | |   <| |_| | |_____| (__| | | | (_| | |_
|_|_|_| |_|_|\_\\__,_|_|      \___|_| |_|\__,_|\__|
`

// getConfigPath returns the path to the client config file.
// Priority: LINKU_CONFIG env var > XDG_CONFIG_HOME/linku/chat.yaml > ~/.config/linku/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LINKU_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "linku", "chat.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: linku-chat <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run            Start an interactive chat session")
		fmt.Println("  conversations  Print the conversation list and exit")
		fmt.Println("  version        Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runChat(ctx)
	case "conversations":
		err = runConversations(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything a command needs after startup.
type app struct {
	cfg     *config.Config
	engine  *session.Engine
	kv      *store.SQLiteStore
	metrics *http.Server
}

func (a *app) Close() {
	a.engine.Close()
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	_ = a.kv.Close()
}

// start loads config, opens storage and logs in. Guests get an error since
// every command needs a user.
func start(ctx context.Context, opts ...session.Option) (*app, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	kv, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, kv: kv}

	client := api.NewClient(cfg.Server.APIURL,
		api.WithSessionCookie(cfg.Server.SessionCookie, cfg.Server.SessionToken),
		api.WithLogger(logger),
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		a.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
	}

	opts = append([]session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
	}, opts...)
	a.engine = session.New(cfg, client, store.NewShared(kv, logger), opts...)

	ok, err := a.engine.Bootstrap(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("starting session: %w", err)
	}
	if !ok {
		a.Close()
		return nil, errors.New("not signed in: set server.session_token (for example ${LINKU_SESSION}) to a valid session")
	}
	return a, nil
}

func runConversations(ctx context.Context) error {
	a, err := start(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printConversations(a.engine)
	return nil
}

func runChat(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	red := color.New(color.FgRed)
	a, err := start(ctx,
		session.WithUnreadHook(func(total int) {
			gray.Printf("    unread: %d\n", total)
		}),
		session.WithPushStateHook(func(open bool) {
			if open {
				gray.Println("    live updates connected")
			} else {
				gray.Println("    live updates lost, polling")
			}
		}),
		session.WithSendFailureHook(func(e *pending.SendError) {
			red.Printf("    ✗ not delivered: %q (%v)\n", e.Input.Content, e.Err)
		}),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Signed in as %s\n", a.engine.UserID())
	green.Print("    ▶ ")
	fmt.Printf("API:  %s\n", a.cfg.Server.APIURL)
	green.Print("    ▶ ")
	fmt.Printf("Push: %s\n\n", a.cfg.Server.PushURL)
	printHelp()

	return newREPL(a.engine, os.Stdin, os.Stdout).Run(ctx)
}
