package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/auth/authfake"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/logger"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/server"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/filerepo"
	"github.com/jrsteele09/go-auth-client/sessions/redisrepo"
	"github.com/jrsteele09/go-auth-client/sessions/repofakes"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const devPasswordEnvVar = "DEV_PASSWORD"

func main() {
	// .env is optional
	_ = godotenv.Load()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("console stopped with error, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Console stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	var c config.Config = config.New()
	log.Logger = logger.Setup(c.IsDev())
	displayAppname(c.GetAppName())

	if c.UseFakeAuthBackend() {
		backend, err := startFakeBackend()
		if err != nil {
			return err
		}
		defer backend.Close()
		c = baseURLOverride{Config: c, baseURL: backend.URL}
		log.Warn().Str("url", backend.URL).Msg("using in-process fake auth backend")
	}

	handler, shutdownHooks, err := build(c, log.Logger)
	if err != nil {
		return err
	}
	defer shutdownHooks()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// build wires the session core and the console pages
func build(c config.Config, lg zerolog.Logger) (http.Handler, func(), error) {
	repo, closeRepo, err := sessionRepo(c, lg)
	if err != nil {
		return nil, nil, err
	}

	store := sessions.NewStore(repo, sessions.WithLogger(lg.With().Str("component", "sessions").Logger()))
	ctx, cancel := context.WithTimeout(context.Background(), c.GetHydrationTimeout())
	defer cancel()
	if err := store.Hydrate(ctx); err != nil {
		// the store starts empty
		lg.Warn().Err(err).Msg("persisted session not restored")
	}

	refresher := refresh.NewHTTPRefresher(
		c.GetAPIBaseURL()+c.GetEndpoints().Refresh,
		http.DefaultTransport,
		refresh.WithRetries(c.GetRefreshMaxTries(), c.GetRefreshInitialBackoff()),
		refresh.WithRefresherLogger(lg.With().Str("component", "refresher").Logger()),
	)
	coordinator := refresh.NewCoordinator(store, refresher,
		refresh.WithLogger(lg.With().Str("component", "refresh").Logger()),
		refresh.WithFallbackTTL(c.GetDefaultAccessTokenTTL()),
		refresh.WithSessionExpiredHandler(func(cause error) {
			lg.Info().Err(cause).Msg("session expired, sign in again")
		}),
	)
	api := client.New(store, coordinator, client.WithLogger(lg.With().Str("component", "api").Logger()))

	authService, err := auth.NewService(c, store, coordinator, api, auth.WithLogger(lg.With().Str("component", "auth").Logger()))
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("[build] %w", err)
	}

	g := guard.New(store, c, guard.WithLogger(lg.With().Str("component", "guard").Logger()))
	srv, err := server.New(c, store, g, authService, server.WithLogger(lg.With().Str("component", "server").Logger()))
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("[build] %w", err)
	}

	return srv, func() {
		coordinator.Cancel()
		closeRepo()
	}, nil
}

// sessionRepo selects the persistence adapter named by STORE_BACKEND
func sessionRepo(c config.Config, lg zerolog.Logger) (sessions.Repo, func(), error) {
	noop := func() {}
	switch backend := c.GetStoreBackend(); backend {
	case config.StoreBackendMemory:
		return repofakes.NewFakeSessionRepo(), noop, nil
	case config.StoreBackendFile:
		repo, err := filerepo.New(c.GetSessionFile(), lg.With().Str("component", "filerepo").Logger())
		if err != nil {
			return nil, nil, fmt.Errorf("[sessionRepo] %w", err)
		}
		return repo, noop, nil
	case config.StoreBackendRedis:
		redisCfg, err := redisrepo.ConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("[sessionRepo] %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := redisrepo.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("[sessionRepo] %w", err)
		}
		return redisrepo.New(rdb, redisCfg.Key, redisCfg.TTL), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("[sessionRepo] unknown session store %q", backend)
	}
}

// startFakeBackend seeds one account per role, all sharing DEV_PASSWORD
func startFakeBackend() (*authfake.Server, error) {
	backend := authfake.New()
	password := config.GetEnv(devPasswordEnvVar, "console-dev-password")
	for _, role := range []users.RoleType{users.RoleAdmin, users.RoleClient, users.RoleVendor, users.RoleEmployee} {
		user := users.User{
			ID:        "dev-" + role.String(),
			Email:     role.String() + "@console.local",
			Role:      role,
			FirstName: "Dev",
			LastName:  role.String(),
		}
		if err := backend.AddUser(user, password); err != nil {
			backend.Close()
			return nil, fmt.Errorf("[startFakeBackend] %w", err)
		}
	}
	return backend, nil
}

// baseURLOverride points every API call at another base URL
type baseURLOverride struct {
	config.Config
	baseURL string
}

func (o baseURLOverride) GetAPIBaseURL() string {
	return o.baseURL
}

func listenAndServe(httpServer *http.Server) error {
	log.Info().Str("addr", httpServer.Addr).Msg("Console listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
