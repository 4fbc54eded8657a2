package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gitnotify/internal/bots"
	"github.com/gitnotify/internal/config"
	"github.com/gitnotify/internal/dispatch"
	"github.com/gitnotify/internal/mail"
	"github.com/gitnotify/internal/repos"
	"github.com/gitnotify/internal/routing"
	"github.com/gitnotify/internal/templates"
	"github.com/gitnotify/pkg/models"
)

// RenderCommand returns the CLI command for rendering a payload offline.
// Useful for checking templates and routing before touching a mail server.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render the notification for a payload file without delivering it",
		ArgsUsage: "PAYLOAD.json",
		Action:    runRender,
	}
}

func runRender(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one payload file")
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	raw, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	// Accept both a full feed envelope and a bare payload.
	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		payload = envelope
	}
	ev := models.FromPayload(payload)

	classifier := bots.NewClassifier(cfg.BotMarker, cfg.KnownBotsFile)
	store := repos.NewStore(cfg.RepositoryPaths, cfg.SchemeFile)
	resolver := routing.NewResolver(store, classifier, cfg.DefaultRecipient, cfg.Jira.DefaultOptions)

	dest, err := resolver.Resolve(ev.Repository, ev.Kind, ev.Action, ev.Actor)
	if err != nil {
		return fmt.Errorf("no notification would be sent: %w", err)
	}

	var overrides map[string]string
	if path := store.Locate(ev.Repository); path != "" {
		overrides = store.ReadSettings(path).CustomSubjects
	}

	tmpl := templates.Load(cfg.Templates)
	subject, body, err := tmpl.Render(ev.RealAction(), dispatch.Fields(ev, dest), overrides)
	if err != nil {
		return fmt.Errorf("no notification would be sent: %w", err)
	}

	msg := mail.Message{
		Sender:    cfg.Sender,
		Recipient: dest,
		Subject:   subject,
		Body:      body,
		MessageID: "<" + ev.ThreadID + "@" + cfg.MsgidDomain + ">",
	}
	os.Stdout.Write(mail.Encode(msg))
	return nil
}
