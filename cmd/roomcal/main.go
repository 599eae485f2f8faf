package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"roomcal/internal/cli"
	"roomcal/internal/config"
	appLog "roomcal/internal/log"
)

var version = "0.1.0-dev"

var CLI struct {
	Version  kong.VersionFlag
	Config   string   `help:"Path to config file." type:"path" default:"~/.config/roomcal/config.yaml" env:"ROOMCAL_CONFIG"`
	EnvFile  []string `help:"Dotenv files loaded before the config." type:"path" default:".env" name:"env-file"`
	Listen   string   `help:"HTTP listen address (overrides config if set)."`
	LogLevel string   `help:"Log level (debug, info, warn, error); overrides config." name:"log-level"`

	Serve   cli.ServeCmd   `cmd:"" help:"Serve the calendar API." default:"1"`
	Events  cli.EventsCmd  `cmd:"" help:"Print the calendar for a window."`
	Show    cli.ShowCmd    `cmd:"" help:"Show one reservation."`
	Create  cli.CreateCmd  `cmd:"" help:"Create a reservation."`
	Delete  cli.DeleteCmd  `cmd:"" help:"Delete a reservation."`
	Export  cli.ExportCmd  `cmd:"" help:"Export the calendar window as iCalendar."`
	Import  cli.ImportCmd  `cmd:"" help:"Create reservations from an iCalendar file or feed."`
	Session cli.SessionCmd `cmd:"" help:"Manage the backend session cookie."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("roomcal"),
		kong.Description("Room reservation calendar: sync, presentation and editing"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)

	if err := config.LoadDotEnv(CLI.EnvFile...); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	conf, err := config.Load(CLI.Config)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", CLI.Config)
		os.Exit(1)
	}
	if CLI.Listen != "" {
		conf.Listen = CLI.Listen
	}
	if CLI.LogLevel != "" {
		conf.Log.Level = CLI.LogLevel
	}
	if err := appLog.Init(appLog.Config{Level: appLog.ParseLevel(conf.Log.Level), Dir: conf.Log.Dir}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	appLog.Debug("effective config",
		"listen", conf.Listen,
		"base_url", appLog.RedactURL(conf.BaseURL),
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"rooms", len(conf.Rooms),
		"session", conf.Session != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err = kctx.Run(&cli.Context{
		Ctx:    ctx,
		Config: conf,
		Out:    os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
