package main

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/config"
	kafkax "github.com/ariefcatur/go-realtime-market/internal/kafka"
	"github.com/ariefcatur/go-realtime-market/internal/logging"
	"github.com/ariefcatur/go-realtime-market/internal/postgres"
	"github.com/segmentio/kafka-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "marketctl",
		Usage: "operate the market engine: schema migrations and status event tailing",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all migrations", Action: migrateAction(true)},
					{Name: "down", Usage: "roll back all migrations", Action: migrateAction(false)},
				},
			},
			{
				Name:  "events",
				Usage: "print status-change events from kafka",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "group", Value: "marketctl", EnvVars: []string{"EVENTS_GROUP"}},
					&cli.IntFlag{Name: "workers", Value: 1, EnvVars: []string{"EVENTS_WORKERS"}},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					if !cfg.KafkaEnabled() {
						return cli.Exit("KAFKA_BROKERS is empty", 2)
					}
					logger, err := logging.New(cfg.LogLevel, "marketctl")
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync() }()

					ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					group, workers := c.String("group"), c.Int("workers")
					logger.Info("consumer started", zap.String("group", group), zap.String("topic", cfg.StatusTopic), zap.Int("workers", workers))
					cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, cfg.StatusTopic, workers, logger)
					return cons.Start(ctx, printEvent(out))
				},
			},
		},
	}
}

func migrateAction(up bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := postgres.Migrate(cfg.PostgresDSN, up); err != nil {
			return err
		}
		dir := "up"
		if !up {
			dir = "down"
		}
		_, err = fmt.Fprintf(c.App.Writer, "migrate %s: ok\n", dir)
		return err
	}
}

// printEvent writes one line per StatusChanged event; other event types are
// acknowledged and skipped.
func printEvent(out io.Writer) kafkax.Handler {
	return func(_ context.Context, m kafka.Message) error {
		ev, err := kafkax.UnmarshalEnvelope(m.Value)
		if err != nil {
			return err
		}
		if ev.EventType != kafkax.EventStatusChanged {
			return nil
		}
		p, err := kafkax.UnwrapPayload[kafkax.StatusChangedPayload](ev.Payload)
		if err != nil {
			return err
		}
		from := p.OldStatus
		if from == "" {
			from = "-"
		}
		_, err = fmt.Fprintf(out, "%s %s#%d %s -> %s (%s)\n",
			p.ChangedAt.Format("2006-01-02T15:04:05Z07:00"), p.EntityKind, p.EntityID, from, p.NewStatus, ev.Producer)
		return err
	}
}
