// cubedrop - online matchmaking coordination backend
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cubedrop/backend/internal/api"
	"github.com/cubedrop/backend/internal/auth"
	"github.com/cubedrop/backend/internal/compute"
	"github.com/cubedrop/backend/internal/config"
	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/events"
	"github.com/cubedrop/backend/internal/matchmaking"
	"github.com/cubedrop/backend/internal/notify"
	"github.com/cubedrop/backend/internal/orchestrator"
	"github.com/cubedrop/backend/internal/results"
	"github.com/cubedrop/backend/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/cubedrop/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "adduser":
		cmdAddUser(os.Args[2:])
	case "version":
		fmt.Printf("cubedrop %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: cubedrop <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                 Write a starter config file")
	fmt.Println("  serve                Start the matchmaking backend")
	fmt.Println("  adduser <player-id>  Create a player account (prompts for password)")
	fmt.Println("  version              Show version")
	fmt.Println("  help                 Show this help")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/cubedrop/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sudo cubedrop init")
	fmt.Println("  cubedrop serve --config /etc/cubedrop/config.yml")
	fmt.Println("  cubedrop adduser alice")
}

func setLogger() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	setLogger()

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatal().Str("path", defaultConfigPath).Msg("serve: no config file found, use --config")
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to load config")
	}

	log.Info().Str("version", version).Msg("serve: cubedrop starting")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to initialize database")
	}
	defer store.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("serve: database initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		ns, err := events.StartEmbeddedServer(filepath.Join(filepath.Dir(cfg.Database.Path), "nats"))
		if err != nil {
			log.Fatal().Err(err).Msg("serve: failed to start embedded nats server")
		}
		defer ns.Shutdown()
		natsURL = ns.ClientURL()
		log.Info().Str("url", natsURL).Msg("serve: embedded nats server running")
	}

	nc, err := nats.Connect(natsURL, nats.Name("cubedrop"))
	if err != nil {
		log.Fatal().Err(err).Str("url", natsURL).Msg("serve: failed to connect to nats")
	}
	defer nc.Close()
	log.Info().Str("url", natsURL).Msg("serve: connected to nats")

	engine := matchmaking.NewNATSEngine(nc, cfg.Matchmaking.ConfigName)
	provisioner := compute.NewNATSProvisioner(nc)
	gateway := matchmaking.NewGateway(engine, store)

	hub := api.NewHub(func(connectionID string) {
		if err := gateway.Cancel(context.Background(), connectionID); err != nil {
			log.Warn().Err(err).Str("connectionId", connectionID).Msg("serve: cancel on disconnect failed")
		}
	})
	notifier := notify.New(hub)

	orch := orchestrator.New(store, provisioner, notifier,
		cfg.Matchmaking.MatchTTL, cfg.Matchmaking.StopRetryDelay)

	consumer, err := events.NewConsumer(nc, cfg.NATS.Stream, orch, cfg.Matchmaking.StopRetryDelay)
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to create event consumer")
	}
	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("serve: failed to start event consumer")
	}
	defer consumer.Stop()
	log.Info().Str("stream", cfg.NATS.Stream).Msg("serve: event consumer running")

	go runSweeper(ctx, store, cfg.Matchmaking.SweepInterval)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	recorder := results.New(store, cfg.Achievements.Milestones)
	router := api.NewRouter(store, authService, gateway, recorder, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serve: http server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("serve: shutdown signal received")
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("serve: http server error")
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("serve: http server shutdown error")
	}

	consumer.Stop()
	log.Info().Msg("serve: shutdown complete")
}

func runSweeper(ctx context.Context, store *storage.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.SweepExpiredMatches(ctx, now)
			if err != nil {
				log.Warn().Err(err).Msg("sweeper: failed to sweep expired matches")
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("sweeper: removed expired matches")
			}
		}
	}
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("Cubedrop is already initialized (%s exists).\n", *configPath)
		fmt.Println("To re-initialize, remove the config file first.")
		return
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating jwt secret: %v\n", err)
		os.Exit(1)
	}

	for _, dir := range []string{filepath.Dir(*configPath), "/var/lib/cubedrop"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("Directory: %s\n", dir)
	}

	content := fmt.Sprintf(`# cubedrop configuration
server:
  listen_addr: "127.0.0.1"
  http_port: 8080

database:
  path: /var/lib/cubedrop/cubedrop.db

auth:
  jwt_secret: "%s"
  token_duration: 24h

nats:
  url: nats://127.0.0.1:4222
  # Run an in-process NATS server instead of dialing url (development only).
  embedded: false
  stream: MMEVENTS

matchmaking:
  config_name: default
  match_ttl: 2h
  stop_retry_delay: 5s
  sweep_interval: 10m

achievements:
  milestones: [10, 100, 500, 1000, 5000]
`, hex.EncodeToString(secret))

	if err := os.WriteFile(*configPath, []byte(content), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *configPath)
	fmt.Println("Next: cubedrop serve")
}

func cmdAddUser(args []string) {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: cubedrop adduser <player-id>")
		os.Exit(1)
	}
	playerID := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
		os.Exit(1)
	}
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		os.Exit(1)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
		os.Exit(1)
	}
	if string(password) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	player := &domain.Player{
		PlayerID:     playerID,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreatePlayer(context.Background(), player); err != nil {
		if errors.Is(err, domain.ErrRecordConflict) {
			fmt.Fprintf(os.Stderr, "Player '%s' already exists\n", playerID)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to create player: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Player '%s' created\n", playerID)
}
