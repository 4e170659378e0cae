package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minaorangina/easyplayer/config"
	"github.com/minaorangina/easyplayer/entity"
	"github.com/minaorangina/easyplayer/journal"
	"github.com/minaorangina/easyplayer/server"
	"github.com/minaorangina/easyplayer/tick"
	"github.com/sirupsen/logrus"
)

const shutdownGrace = 5 * time.Second

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("could not load config")
	}
	log.SetLevel(cfg.Level())

	world, err := config.LoadWorld(cfg.WorldPath)
	if err != nil {
		log.WithError(err).Fatal("could not load world")
	}

	recorder, err := journal.Open(cfg.Journal, cfg.JournalPath)
	if err != nil {
		log.WithError(err).Fatal("could not open journal")
	}
	// closed after ServeUntil has stopped the tick loop
	defer recorder.Close()

	store := entity.NewInMemoryStore(entity.StoreOpts{
		MaxPlayers: world.MaxPlayers,
		Attributes: world.Attributes,
	})
	dispatcher := tick.NewDispatcher(tick.DispatcherOpts{
		Interval: tick.IntervalFromRate(cfg.TickRate),
		Logger:   log.WithField("component", "tick"),
	})

	accessLog := log.WriterLevel(logrus.DebugLevel)
	defer accessLog.Close()

	s := server.NewServer(server.ServerOpts{
		Store:       store,
		Dispatcher:  dispatcher,
		Mode:        world.GameMode(),
		DefaultTeam: world.DefaultTeam,
		Journal:     recorder,
		Logger:      log.WithField("component", "server"),
		AccessLog:   accessLog,
	})

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.WithError(err).Fatal("could not listen")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"mode":    world.GameMode().String(),
		"journal": cfg.Journal,
		"session": s.Session(),
	}).Info("listening")

	if err := s.ServeUntil(ctx, ln, shutdownGrace); err != nil {
		log.WithError(err).Error("server stopped")
	}
	log.Info("bye")
}
