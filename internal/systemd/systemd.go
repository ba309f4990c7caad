// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd enables applications to signal readiness and update watchdog
// timestamp to systemd.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// State defines a sd-notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is
	// finished, or the service finished loading its configuration.
	Ready State = "READY=1"

	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"

	// Watchdog tells the service manager to update the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Notify sends a message to systemd using the sd_notify protocol. getenv
// looks up NOTIFY_SOCKET; nothing is sent when it is unset. Errors are logged.
func Notify(logger *slog.Logger, getenv func(string) string, state State) {
	addr := &net.UnixAddr{
		Net:  "unixgram",
		Name: getenv("NOTIFY_SOCKET"),
	}
	if addr.Name == "" {
		// Not running under systemd.
		return
	}

	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		logger.Warn("systemd: notify failed", "state", string(state), "err", err)
		return
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(state)); err != nil {
		logger.Warn("systemd: notify failed", "state", string(state), "err", err)
	}
}

// WatchdogLoop periodically updates the systemd watchdog timestamp until ctx
// is canceled. It returns immediately when WATCHDOG_USEC is unset.
func WatchdogLoop(ctx context.Context, logger *slog.Logger, getenv func(string) string) {
	if getenv("WATCHDOG_USEC") == "" {
		return
	}

	interval, err := watchdogInterval(getenv("WATCHDOG_USEC"))
	if err != nil {
		logger.Warn("systemd: watchdog disabled", "err", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Notify(logger, getenv, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

// watchdogInterval returns half of the watchdog timeout, as sd_watchdog_enabled
// recommends.
func watchdogInterval(usec string) (time.Duration, error) {
	s, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("converting WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(s) * time.Microsecond / 2, nil
}
