package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"nutriserve/api"
	"nutriserve/config"
	"nutriserve/livereload"
	"nutriserve/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit so tests can drive it
func run(args []string, stdout, stderr io.Writer) int {
	log := logger.GetLogger()

	fs := flag.NewFlagSet("nutriserve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", config.DefaultPort, "TCP port to listen on")
	dir := fs.String("dir", "", "directory to serve (default: working directory)")
	host := fs.String("host", "", "interface to bind (default: all)")
	configPath := fs.String("config", "", "path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath, config.DefaultEnvFile)
	if err != nil {
		fmt.Fprintf(stderr, "nutriserve: %v\n", err)
		return 1
	}

	// Flags win over file and environment, but only when given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "dir":
			cfg.Server.Root = *dir
		case "host":
			cfg.Server.Host = *host
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "nutriserve: invalid configuration: %v\n", err)
		return 1
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(stderr, "nutriserve: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(cfg, log)

	if cfg.LiveReload.Enabled {
		hub := livereload.NewHub(log)
		defer hub.Close()
		srv.SetLiveReload(hub)

		watcher := livereload.NewWatcher(cfg.Server.Root, cfg.LiveReload.GetInterval(), hub, log)
		if err := watcher.Start(ctx); err != nil {
			fmt.Fprintf(stderr, "nutriserve: live reload: %v\n", err)
			return 1
		}
		defer watcher.Stop()
	}

	// Set up signal handling before binding so an early Ctrl+C is not lost
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := srv.Start(ctx); err != nil {
		var bindErr *api.BindError
		if errors.As(err, &bindErr) {
			fmt.Fprintf(stderr, "nutriserve: cannot listen on %s: %v\n", bindErr.Addr, bindErr.Err)
		} else {
			fmt.Fprintf(stderr, "nutriserve: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(stdout, "Serving NutriConsult Pro at http://localhost:%d\n", srv.Port())
	fmt.Fprintln(stdout, "Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		// Cancel context to initiate shutdown
		cancel()
		<-srv.Done()
	case <-srv.Done():
	}

	if err := srv.Err(); err != nil {
		fmt.Fprintf(stderr, "nutriserve: server failed: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "\nServer stopped.")
	return 0
}
