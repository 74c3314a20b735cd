package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/chaz8081/scwatch/internal/ble"
	"github.com/chaz8081/scwatch/internal/ble/srvchanged"
)

// watcher is the Service Changed handler for the watch command. It runs
// on the stack's dispatch goroutine.
type watcher struct {
	client   *srvchanged.Client
	stack    *ble.Stack
	indicate bool
}

func (w *watcher) HandleServiceChanged(ev srvchanged.Event) {
	switch ev.Type {
	case srvchanged.EventCharFound:
		if !w.indicate {
			slog.Info("[SRVCHG] characteristic found, indications left off", "conn", ev.Conn)
			return
		}
		if err := w.client.SetIndicationEnabled(true); err != nil {
			slog.Error("[SRVCHG] enable indications failed", "conn", ev.Conn, "error", err)
			return
		}
		slog.Info("[SRVCHG] indications enabled", "conn", ev.Conn)

	case srvchanged.EventCharNotFound:
		slog.Warn("[SRVCHG] peer has no Service Changed characteristic", "conn", ev.Conn)

	case srvchanged.EventServiceChanged:
		if ev.HasRange {
			fmt.Printf("%s service changed on conn %s: handles %s\n", time.Now().Format(time.RFC3339), ev.Conn, ev.Affected)
		} else {
			fmt.Printf("%s service changed on conn %s\n", time.Now().Format(time.RFC3339), ev.Conn)
		}
		// The peer's attribute table moved; learn the new handles.
		w.rediscover(ev.Conn)
	}
}

func watch(c *cli.Context) error {
	if addr := c.String("device"); addr != "" {
		cfg.Device.Address = addr
	}
	if c.Bool("no-indicate") {
		cfg.ServiceChanged.EnableIndications = false
	}
	if c.Bool("reset-on-disconnect") {
		cfg.ServiceChanged.ResetOnDisconnect = true
	}
	if err := cfg.ValidateWatch(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	stack := ble.NewStack(ble.NewTinyGoAdapter(), ble.StackOptions{
		QueueSize:        cfg.Stack.EventQueueSize,
		MaxRegistrations: cfg.Stack.MaxRegistrations,
	})
	defer stack.Close()

	var opts []srvchanged.Option
	if cfg.ServiceChanged.ResetOnDisconnect {
		opts = append(opts, srvchanged.WithResetOnDisconnect())
	}
	registry := srvchanged.NewRegistry(stack)
	client := srvchanged.NewClient(registry, stack, opts...)

	w := &watcher{
		client:   client,
		stack:    stack,
		indicate: cfg.ServiceChanged.EnableIndications,
	}
	if err := client.Init(w); err != nil {
		return errors.Wrap(err, "can't initialize service changed client")
	}
	stack.AddObserver(client)

	runErr := make(chan error, 1)
	go func() { runErr <- stack.Run(context.Background()) }()

	session := ble.NewSession(stack, cfg.Device.Address, ble.SessionOptions{
		ConnectTimeout: time.Duration(cfg.Device.ConnectTimeout) * time.Second,
		Reconnect:      cfg.Reconnect.Enabled,
		ReconnectMax:   cfg.Reconnect.MaxBackoff,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	printBanner(cfg.Device.Address, w.indicate, cfg.ServiceChanged.ResetOnDisconnect)
	if err := session.Start(context.Background()); err != nil {
		return errors.Wrapf(err, "can't connect to %s", cfg.Device.Address)
	}

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case err := <-runErr:
		if err != nil {
			return errors.Wrap(err, "event dispatch stopped")
		}
	}

	if err := session.Close(); err != nil {
		slog.Warn("[BLE] disconnect failed", "error", err)
	}
	return nil
}

// rediscover reruns discovery on conn. Discover blocks on the peer, so it
// runs off the dispatch goroutine.
func (w *watcher) rediscover(conn ble.ConnHandle) {
	go func() {
		if err := w.stack.Discover(conn); err != nil {
			slog.Warn("[SRVCHG] rediscovery failed", "conn", conn, "error", err)
		}
	}()
}

// printBanner displays the watch configuration summary.
func printBanner(address string, indicate, reset bool) {
	fmt.Println("=== scwatch ===")
	fmt.Printf("  Device:      %s\n", address)
	fmt.Printf("  Indications: %v\n", indicate)
	fmt.Printf("  Reset:       %v\n", reset)
	fmt.Println("===============")
}
