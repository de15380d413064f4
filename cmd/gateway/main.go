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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bionicpro/auth-gateway/auth"
	"github.com/bionicpro/auth-gateway/authflow"
	"github.com/bionicpro/auth-gateway/idp"
	"github.com/bionicpro/auth-gateway/internal/config"
	"github.com/bionicpro/auth-gateway/server"
	"github.com/bionicpro/auth-gateway/sessions"
	"github.com/bionicpro/auth-gateway/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
	log.Info().Msg("gateway stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.App.Env)
	displayAppname(cfg.App.Name)

	ctx := context.Background()

	sessionRepo, err := sessions.NewRedisRepo(ctx, sessions.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer sessionRepo.Close()
	challengeRepo := authflow.NewRedisRepo(sessionRepo.Client())

	provider, err := idp.NewClient(idp.Config{
		Issuer:       cfg.Provider.Issuer(),
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		RedirectURI:  cfg.Provider.RedirectURI,
		Scopes:       cfg.Provider.Scopes,
		Timeout:      cfg.Provider.Timeout,
	})
	if err != nil {
		return err
	}

	cipher, err := token.NewCipher(token.LoadKey(cfg.Session.EncryptionKey))
	if err != nil {
		return err
	}

	sessionService, err := auth.NewSessionService(sessionRepo, challengeRepo, provider, cipher, cfg.Session.Lifetime)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, sessionService, sessionRepo, provider)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.App.Addr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("gateway listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func setupLogging(env string) {
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
