package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"blackbody-telemetry/config"
	"blackbody-telemetry/utils"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config/node.yaml", "Path to node.yaml")
		logLevel  = flag.String("log", "", "trace|debug|info|warn|error|critical (overrides config)")
		transport = flag.String("transport", "", "socketcan|slcan|loopback (overrides config)")
		iface     = flag.String("iface", "", "SocketCAN interface name (overrides config)")
		port      = flag.String("port", "", "SLCAN serial port (overrides config)")
		autostart = flag.Bool("autostart", false, "Enter RUNNING after boot")
		writeCfg  = flag.String("write-config", "", "Write the effective configuration to this path and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("ERROR: %v\n", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *transport != "" {
		cfg.Bus.Transport = *transport
	}
	if *iface != "" {
		cfg.Bus.Interface = *iface
	}
	if *port != "" {
		cfg.Bus.SerialPort = *port
	}
	if *autostart {
		cfg.Autostart = true
	}
	if err := config.Validate(cfg); err != nil {
		fatalf("ERROR: invalid config %s: %v\n", *cfgPath, err)
	}

	if *writeCfg != "" {
		if err := cfg.Save(*writeCfg); err != nil {
			fatalf("ERROR: %v\n", err)
		}
		return
	}

	log, err := utils.NewFileLogger(cfg.Log.File, utils.ParseLevel(cfg.Log.Level), cfg.Log.Stdout)
	if err != nil {
		fatalf("ERROR: cannot open %s: %v\n", cfg.Log.File, err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	// SIGUSR1 raises the debug fault, as the bench button did on the board
	usr := make(chan os.Signal, 1)
	signal.Notify(usr, syscall.SIGUSR1)
	defer signal.Stop(usr)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr:
				runner.InjectFault()
			}
		}
	}()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
