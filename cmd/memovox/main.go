package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"memovox/internal/app"
	"memovox/internal/audio"
	"memovox/internal/config"
	"memovox/internal/library"
	"memovox/internal/logging"
	"memovox/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "memovox:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dev, err := audio.NewPortAudio(cfg.MediaDir(), audio.Format{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}, log)
	if err != nil {
		return err
	}
	defer dev.Close()

	lib, err := library.New(library.Config{
		Store:         st,
		Device:        dev,
		Log:           log,
		CeilingSec:    cfg.RecordingCeilingSec,
		DefaultVolume: cfg.DefaultVolume,
		CallTimeout:   cfg.DeviceTimeout(),
	})
	if err != nil {
		return err
	}
	defer lib.Close()

	log.Info("starting", zap.String("store", cfg.StoreBackend),
		zap.String("dataDir", cfg.DataDir))

	p := tea.NewProgram(app.New(lib, cfg.RecordingCeilingSec), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreBackend == "sqlite" {
		return store.OpenSQLite(cfg.StorePath())
	}
	return store.NewFileStore(cfg.StorePath())
}
