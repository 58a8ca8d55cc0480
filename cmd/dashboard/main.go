// Command dashboard is a terminal front end for the users API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"userdash/pkg/apiclient"
	"userdash/pkg/config"
	"userdash/pkg/dashboard"
	"userdash/pkg/logging"
	"userdash/pkg/store"
)

func main() {
	cfg, err := config.LoadDashboard()
	if err != nil {
		slog.Error("invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	// stdout belongs to the screen
	log := logging.NewWithWriter(os.Stderr, cfg.LogFormat)

	client := apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithLogger(log))
	users := store.New(client, store.WithPerPage(cfg.PerPage), store.WithLogger(log))
	ctrl := dashboard.New(users,
		dashboard.WithSearchDelay(cfg.SearchDebounce),
		dashboard.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newREPL(ctrl, users, os.Stdout)
	if err := r.run(ctx, os.Stdin); err != nil {
		log.Error("dashboard stopped", logging.Err(err))
		os.Exit(1)
	}
}
