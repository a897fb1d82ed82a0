package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/agent"
	"github.com/apexion-ai/wikichat/internal/config"
	"github.com/apexion-ai/wikichat/internal/logging"
	"github.com/apexion-ai/wikichat/internal/session"
	"github.com/apexion-ai/wikichat/internal/wiki"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	sessions *session.Manager
	chat     *agent.Chat

	logCloser io.Closer
}

// openStore loads config, the logger and the session store. Commands that
// never call the model (sessions) stop here.
func openStore() (*app, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, logCloser: closer}
	a.sessions = session.Open(openPersister(cfg, log), session.Options{
		Capacity: cfg.Storage.Capacity,
		Logger:   logging.Component(log, "session"),
	})
	return a, nil
}

// openApp extends openStore with the provider, retriever and chat pipeline.
func openApp() (*app, error) {
	a, err := openStore()
	if err != nil {
		return nil, err
	}
	p, err := buildProvider(a.cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.cfg.Model == "" {
		a.cfg.Model = p.DefaultModel()
	}

	retriever := wiki.New(wiki.Options{
		APIURL:    a.cfg.Wiki.APIURL,
		UserAgent: a.cfg.Wiki.UserAgent,
		Format:    wiki.ExtractFormat(a.cfg.Wiki.ExtractFormat),
		Timeout:   a.cfg.Wiki.Timeout,
		Logger:    logging.Component(a.log, "wiki"),
	})
	synth := agent.NewSynthesizer(p, agent.SynthesizerOptions{
		Model:        a.cfg.Model,
		SystemPrompt: a.cfg.SystemPrompt,
		Sampling: agent.Sampling{
			Temperature: a.cfg.Sampling.Temperature,
			TopP:        a.cfg.Sampling.TopP,
			MaxTokens:   a.cfg.Sampling.MaxTokens,
			Timeout:     a.cfg.Sampling.Timeout,
		},
		Logger: logging.Component(a.log, "synth"),
	})
	orch := agent.NewOrchestrator(retriever, synth, logging.Component(a.log, "orchestrator"))
	a.chat = agent.NewChat(a.sessions, orch, logging.Component(a.log, "chat"))

	a.log.Debug().
		Str("provider", p.Name()).
		Str("model", synth.Model()).
		Str("storage", a.cfg.Storage.Backend).
		Msg("app ready")
	return a, nil
}

// openPersister returns the configured backend. When the backend cannot be
// opened, sessions live in memory for this run only.
func openPersister(cfg *config.Config, log zerolog.Logger) session.Persister {
	path := cfg.StoragePath()
	switch cfg.Storage.Backend {
	case "sqlite":
		if dir := filepath.Dir(path); dir != "" {
			_ = os.MkdirAll(dir, 0755)
		}
		p, err := session.NewSQLitePersister(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("sqlite storage unavailable, sessions will not be saved")
			fmt.Fprintf(os.Stderr, "warning: %v; sessions will not be saved\n", err)
			return session.NewMemoryPersister()
		}
		return p
	default:
		return session.NewFilePersister(path)
	}
}

// Close releases the session store and the log file. Every mutation has
// already been saved by the time it runs.
func (a *app) Close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close session store")
		}
	}
	closeQuietly(a.logCloser)
}

// signalContext is cancelled on SIGINT or SIGTERM. Signals are only captured
// until the first one arrives, so a second Ctrl+C kills the process.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}
