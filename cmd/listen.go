package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/gitnotify/internal/api"
	"github.com/gitnotify/internal/bots"
	"github.com/gitnotify/internal/collate"
	"github.com/gitnotify/internal/config"
	"github.com/gitnotify/internal/dispatch"
	"github.com/gitnotify/internal/jira"
	"github.com/gitnotify/internal/mail"
	"github.com/gitnotify/internal/pubsub"
	"github.com/gitnotify/internal/repos"
	"github.com/gitnotify/internal/routing"
	"github.com/gitnotify/internal/templates"
	"github.com/gitnotify/pkg/shared"
)

// ListenCommand returns the CLI command for running the notifier daemon
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:   "listen",
		Usage:  "Consume the event feed and deliver notifications",
		Action: runListen,
	}
}

func runListen(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	pipeline.Start(ctx)

	// Heartbeats normally pace collation flushes; the ticker covers feed
	// outages so batches never sit past their quiet period.
	go flushLoop(ctx, pipeline, cfg.QuietPeriod())

	errCh := make(chan error, 2)
	if cfg.PubsubURL != "" {
		creds := shared.Credentials{User: cfg.PubsubUser, Password: cfg.PubsubPass}
		listener := pubsub.NewListener(cfg.PubsubURL, creds, pipeline.HandleRaw)
		go func() { errCh <- listener.Run(ctx) }()
		log.Info().Str("url", cfg.PubsubURL).Msg("Following event stream")
	}
	if cfg.ListenAddr != "" {
		server := api.NewServer(cfg.ListenAddr, pipeline.HandleRaw)
		go func() { errCh <- server.Start(ctx) }()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down")
	return nil
}

// buildPipeline assembles the dispatch pipeline and its collaborators
// from the configuration.
func buildPipeline(cfg *config.Config) (*dispatch.Pipeline, error) {
	classifier := bots.NewClassifier(cfg.BotMarker, cfg.KnownBotsFile)
	store := repos.NewStore(cfg.RepositoryPaths, cfg.SchemeFile)
	resolver := routing.NewResolver(store, classifier, cfg.DefaultRecipient, cfg.Jira.DefaultOptions)
	collator := collate.New(cfg.QuietPeriod())

	tmpl := templates.Load(cfg.Templates)
	if len(tmpl.Keys()) == 0 {
		log.Warn().Msg("No templates loaded, every event will be suppressed")
	}

	var mailer mail.Mailer = mail.Discard{}
	if cfg.SendEmail {
		mailer = mail.NewSMTP(cfg.SMTP.Addr)
	} else {
		log.Info().Msg("Dry-run mode, messages are logged instead of sent")
	}

	opts := dispatch.Options{
		Sender:      cfg.Sender,
		MsgidDomain: cfg.MsgidDomain,
		Allow:       cfg.Only,
		Deny:        cfg.Ignore,
	}

	if cfg.Jira.URL == "" {
		return dispatch.New(opts, resolver, tmpl, collator, store, mailer, nil), nil
	}

	var creds shared.Credentials
	if cfg.Jira.CredentialsFile != "" {
		var err error
		creds, err = shared.CredentialsFromFile(cfg.Jira.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read jira credentials: %w", err)
		}
	}
	client := jira.NewClient(cfg.Jira.URL, creds, cfg.Jira.RequestsPerMinute)
	return dispatch.New(opts, resolver, tmpl, collator, store, mailer, jira.NewNotifier(client)), nil
}

// flushLoop periodically emits collation batches past their quiet period.
func flushLoop(ctx context.Context, pipeline *dispatch.Pipeline, quiet time.Duration) {
	interval := quiet / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pipeline.FlushDue(ctx)
		}
	}
}
