package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"safebot-be/internal/config"
	"safebot-be/pkg/events"
	pktNats "safebot-be/pkg/nats"

	"github.com/fatih/color"
)

// review tails the safety review stream for the people who follow up on flagged threads.
func main() {
	cfg := config.Load()

	durable := flag.String("durable", "safebot-review-cli", "durable consumer name")
	subject := flag.String("subject", pktNats.SubjectAll, "subject filter")
	flag.Parse()

	if cfg.App.NatsURL == "" {
		color.Red("NATS_URL is not set")
		os.Exit(1)
	}

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		color.Red("Failed to connect: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sub.Subscribe(ctx, *subject, *durable, func(ctx context.Context, ev events.Event) error {
		data, err := json.MarshalIndent(ev.Payload(), "  ", "  ")
		if err != nil {
			return err
		}
		headline := color.New(color.FgYellow, color.Bold)
		if ev.EventType() == events.TypeSchemaViolation {
			headline = color.New(color.FgRed, color.Bold)
		}
		headline.Printf("%s  %s\n", ev.Timestamp().Format("2006-01-02 15:04:05"), ev.EventType())
		color.White("  %s\n", data)
		return nil
	})
	if err != nil {
		color.Red("Failed to subscribe: %v", err)
		os.Exit(1)
	}

	color.Cyan("Waiting for review events on %s (Ctrl+C to stop)", *subject)
	<-ctx.Done()
}
