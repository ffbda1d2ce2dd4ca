package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/config"
	"github.com/dicearena/client/internal/conn"
	"github.com/dicearena/client/internal/httpapi"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/schedule"
	"github.com/dicearena/client/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	var sess *session.Session
	supervisor := conn.NewSupervisor(gCtx, logger, conn.Config{
		URL:               cfg.ServerURL,
		UserID:            cfg.UserID,
		Token:             cfg.Token,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		BackoffBase:       cfg.BackoffBase,
		MaxAttempts:       cfg.MaxAttempts,
	}, conn.WebsocketDialer, clock.System{}, func(m protocol.Inbound) { sess.Sink(m) })

	sess = session.New(gCtx, logger, supervisor, session.Config{
		LocalID:           cfg.UserID,
		AnimationDuration: cfg.AnimationDuration,
		ResultPause:       cfg.ResultPause,
		Timers: schedule.Config{
			TurnDuration:  cfg.TurnDuration,
			ReadyDuration: cfg.ReadyDuration,
			FallbackDelay: cfg.FallbackDelay,
		},
		Notify: func(n session.Notice) {
			logger.Warn("application notice", zap.String("code", n.Code), zap.String("message", n.Message))
		},
	})
	supervisor.OnState(sess.ConnStateChanged)
	supervisor.Connect()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.SetupRoutes(sess)}
	g.Go(func() error {
		logger.Info("diagnostics listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		sess.Close()
		supervisor.Close()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error("exiting", zap.Error(err))
	}
}
