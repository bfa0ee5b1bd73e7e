package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/golaunch/logging"
	"github.com/nomis52/golaunch/server"
	serverconfig "github.com/nomis52/golaunch/server/config"
)

type Args struct {
	ConfigPath string
	ListenAddr string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	srvCfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(srvCfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var opts []server.Option
	if args.ListenAddr != "" {
		opts = append(opts, server.WithListenAddr(args.ListenAddr))
	}

	srv, err := server.New(srvCfg, logger.Logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		srv.Logger().Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return srv.Run(ctx)
}

// loadConfig reads the server config file, or builds one from defaults and
// the environment when no file is given.
func loadConfig(path string) (*serverconfig.ServerConfig, error) {
	if path == "" {
		cfg, err := serverconfig.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to build default server config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := serverconfig.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	return cfg, nil
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	listenAddr := flag.String("listen", "", "Listen address, overrides the config file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ngolaunch - single-slot deployment launcher with live log streaming\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nWithout a config file, defaults and environment variables are used\n")
		fmt.Fprintf(os.Stderr, "(DEPLOY_TYPE, CONFIG_FILE, STATE_FILE, HELP_CONTENT_FILE, DRY_RUN, ...).\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/golaunch/server.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server.yaml -listen :9000\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath: path,
		ListenAddr: *listenAddr,
	}
}
