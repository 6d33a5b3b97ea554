package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/abhyasa/internal/compare"
	"github.com/ayusman/abhyasa/internal/config"
	"github.com/ayusman/abhyasa/internal/notify"
	"github.com/ayusman/abhyasa/internal/server"
	"github.com/ayusman/abhyasa/internal/store"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "main")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.WithError(err).Fatal("failed to create data directory")
		}
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer st.Close()

	hub := notify.NewHub(cfg.ThrottleInterval())

	orchestrator := compare.New(compare.Config{
		Store:                   st,
		Notifier:                hub,
		ConfidenceThreshold:     cfg.ConfidenceThreshold,
		MaxGapFrames:            cfg.MaxGapFrames,
		DTWBand:                 cfg.DTWBand,
		DecayK:                  cfg.DecayK,
		LowConfidenceBelow:      cfg.LowConfidenceBelow,
		FeedbackLow:             cfg.FeedbackLow,
		FeedbackHigh:            cfg.FeedbackHigh,
		FeedbackMax:             cfg.FeedbackMax,
		MaxStoredAlignmentPairs: cfg.MaxStoredAlignmentPairs,
		PersistRetries:          cfg.PersistRetries,
		PersistBackoff:          cfg.PersistBackoff(),
	})

	srv := server.New(server.Config{
		Store:        st,
		Orchestrator: orchestrator,
		Hub:          hub,
	})

	log.WithField("addr", cfg.Addr).Info("starting server")
	if err := srv.ListenAndServe(cfg.Addr); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
