package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FlowGuard/internal/model"
	"FlowGuard/internal/sink/publish"

	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:  "tail",
		Usage: "print events published on NATS by a running instance",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{
				Name:  "url, u",
				Usage: "NATS server URL (overrides sink.nats.url)",
			},
			cli.StringFlag{
				Name:  "subject",
				Usage: "subject to subscribe to (overrides sink.nats.subject)",
			},
		},
		Action: tail,
	}
	allCommands = append(allCommands, command)
}

func tail(c *cli.Context) error {
	cfg, closer, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	url, subject := cfg.Sink.NATS.URL, cfg.Sink.NATS.Subject
	if u := c.String("url"); u != "" {
		url = u
	}
	if s := c.String("subject"); s != "" {
		subject = s
	}

	sub, err := publish.NewSubscriber(url, subject)
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := sub.Start(func(batch model.Batch) {
		for _, e := range batch.Items {
			fmt.Fprintln(os.Stdout, formatEvent(e))
		}
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func formatEvent(e model.Event) string {
	line := fmt.Sprintf("%s %-8s %-5s %s:%d -> %s:%d %s",
		e.Time.Format("15:04:05.000"), e.Model, e.Proto, e.SrcIP, e.SrcPort, e.DstIP, e.DstPort, e.Label())
	if e.Confidence != nil {
		line += fmt.Sprintf(" (%.2f)", *e.Confidence)
	}
	if e.Flow != nil {
		line += fmt.Sprintf(" pkts=%d/%d dur=%.3fs", e.Flow.PacketsFwd, e.Flow.PacketsBwd, e.Flow.Duration)
	}
	return line
}
