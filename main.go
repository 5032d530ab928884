package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/ccfarm/seqbuf/config"
	"github.com/ccfarm/seqbuf/engine"
	"github.com/ccfarm/seqbuf/handler"
	"github.com/ccfarm/seqbuf/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()

	// 1.启动服务
	listen, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen failed")
	}
	logger.Infof("listening on %s, %d blocks of %d bytes", listen.Addr(), cfg.BlockNumber, cfg.BlockCapacity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2.等待客户端来建立连接, 每个连接一个goroutine
	db := engine.NewDB(cfg.BlockNumber, cfg.BlockCapacity)
	err = handler.NewServer(db).Serve(ctx, listen)
	logger.Infof("server stopped")
	return err
}

// loadConfig reads --config first, then lets the other flags override it.
func loadConfig(args []string) (*config.Config, error) {
	pre := pflag.NewFlagSet("seqbuf", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	path := pre.String("config", "", "path to YAML config file")
	_ = pre.Parse(args)

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return nil, err
		}
	}

	flagSet := pflag.NewFlagSet("seqbuf", pflag.ContinueOnError)
	flagSet.String("config", *path, "path to YAML config file")
	cfg.AddFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
