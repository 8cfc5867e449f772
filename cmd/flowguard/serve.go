package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FlowGuard/internal/api"
	"FlowGuard/internal/capture"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and classify live traffic on demand",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "HTTP listen `ADDR` (overrides api.listen_addr)",
			},
			cli.StringFlag{
				Name:  "iface, i",
				Usage: "capture interface (overrides capture.interface)",
			},
			cli.BoolFlag{
				Name:  "start, s",
				Usage: "start capturing immediately",
			},
		},
		Action: serve,
	}
	allCommands = append(allCommands, command)
}

func serve(c *cli.Context) error {
	cfg, closer, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	if iface := c.String("iface"); iface != "" {
		cfg.Capture.Interface = iface
	}
	addr := cfg.API.ListenAddr
	if l := c.String("listen"); l != "" {
		addr = l
	}

	p, err := newPipeline(cfg, capture.LiveOpener(capture.OptionsFrom(cfg.Capture)))
	if err != nil {
		return err
	}
	defer p.close()

	if cfg.API.AutoStart || c.Bool("start") {
		if err := p.manager.Start(cfg.Capture.Interface); err != nil {
			log.WithError(err).Error("Capture did not start, use /api/live/start to retry")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(p.manager, p.adapter, p.hub, p.metrics.Registry)
	return srv.ListenAndServe(ctx, addr)
}
