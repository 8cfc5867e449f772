package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"FlowGuard/internal/capture"
	"FlowGuard/internal/model"
	"FlowGuard/internal/sink"
	"FlowGuard/internal/sink/publish"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:      "replay",
		Usage:     "classify the packets of a pcap file and print a summary",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{
				Name:  "model, m",
				Usage: "model variant to use (overrides classifier.active)",
			},
			cli.BoolFlag{
				Name:  "json, j",
				Usage: "write every event to stdout as a JSON line",
			},
			cli.BoolFlag{
				Name:  "wall-clock",
				Usage: "expire flows by wall time instead of capture timestamps",
			},
		},
		Action: replay,
	}
	allCommands = append(allCommands, command)
}

func replay(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("a pcap file is required", 1)
	}
	cfg, closer, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg.Capture.TimeSource = "packet"
	if c.Bool("wall-clock") {
		cfg.Capture.TimeSource = "wall"
	}
	if m := c.String("model"); m != "" {
		cfg.Classifier.Active = m
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	var extra []sink.Publisher
	var lines *jsonLines
	if c.Bool("json") {
		lines = newJSONLines(os.Stdout)
		extra = append(extra, lines)
	}
	p, err := newPipeline(cfg, capture.FileOpener(path, cfg.Capture.BPFFilter), extra...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.manager.Start(path); err != nil {
		p.close()
		return err
	}
	if err := p.manager.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Replay interrupted")
	}
	p.close()
	stats := p.manager.Stats()
	if lines != nil {
		if err := lines.flush(); err != nil {
			log.WithError(err).Warn("Failed to flush JSON output")
		}
	}

	labels := make([]string, 0, len(stats))
	total := 0
	for label, n := range stats {
		labels = append(labels, label)
		total += n
	}
	sort.Strings(labels)
	for _, label := range labels {
		log.WithFields(log.Fields{"label": label, "events": stats[label]}).Info("Replay result")
	}
	log.WithFields(log.Fields{
		"file":   path,
		"model":  cfg.Classifier.Active,
		"events": total,
	}).Info("Replay finished")
	return nil
}

// jsonLines writes every broadcast event as one JSON document per line.
type jsonLines struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newJSONLines(w io.Writer) *jsonLines {
	return &jsonLines{w: bufio.NewWriter(w)}
}

func (j *jsonLines) Name() string { return "jsonl" }

func (j *jsonLines) Publish(batch model.Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range batch.Items {
		data, err := publish.EncodeEvent(e)
		if err != nil {
			return err
		}
		if _, err := j.w.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if err := j.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return nil
}

func (j *jsonLines) flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

func (j *jsonLines) Close() error {
	return j.flush()
}
