package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fyd-app/go-fyd-client/api"
	"github.com/fyd-app/go-fyd-client/auth"
	"github.com/fyd-app/go-fyd-client/internal/config"
	"github.com/fyd-app/go-fyd-client/sessions/filestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fyd: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			returnError = errors.Errorf("panic recovered: %v", r)
		}
	}()

	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a yaml config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	store, err := filestore.New(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	authClient, err := auth.New(cfg.API.BaseURL, store,
		auth.WithHTTPClient(httpClient),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	apiClient := api.New(cfg.API.BaseURL, authClient,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return nil
	}

	command, commandArgs := args[0], args[1:]
	if command != "whoami" && command != "logout" {
		displayAppName(cfg.App.Name)
	}

	switch command {
	case "login":
		return runLogin(ctx, authClient, commandArgs)
	case "register":
		return runRegister(ctx, authClient, commandArgs)
	case "events":
		return runEvents(ctx, authClient, api.NewEventsService(apiClient))
	case "my-events":
		return runUserEvents(ctx, authClient, api.NewEventsService(apiClient))
	case "interests":
		return runInterests(ctx, api.NewCategoriesService(apiClient))
	case "update":
		return runUpdate(ctx, authClient, api.NewUsersService(apiClient, authClient), commandArgs)
	case "whoami":
		return runWhoami(ctx, authClient)
	case "logout":
		return authClient.Logout(ctx)
	case "delete-account":
		return runDeleteAccount(ctx, authClient, api.NewUsersService(apiClient, authClient))
	default:
		usage()
		return errors.Errorf("unknown command %q", command)
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: fyd [-config file] <command> [flags]

Commands:
  login           sign in (-email, -password)
  register        create an account (-name, -email, -password, -city, -interests)
  events          list events for your city and interests, grouped by month
  my-events       list events saved to your personal list
  interests       list selectable interest categories
  update          update profile fields (-name, -email, -city, -interests, -age)
  whoami          show the current session
  logout          sign out
  delete-account  delete the account and local session`)
}
