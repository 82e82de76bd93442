package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/telefwd/telefwd/internal/api"
	"github.com/telefwd/telefwd/internal/client"
	"github.com/telefwd/telefwd/internal/config"
	"github.com/telefwd/telefwd/internal/logging"
)

const usage = `usage: telefwd [flags] <command> [args]

commands:
  login <email>                 authenticate and persist the credential
  register <email> <username>   create an account and authenticate
  logout                        clear the credential and cached state
  me                            show the current account
  channels                      list attached channels
  available                     list channels reachable but not attached
  rules                         list forwarding rules
  stats                         show the dashboard summary
  logs [days] [limit]           show forwarding logs
  analytics [days]              show per-range analytics
  performance                   show the trailing-24h report
  bot <status|start|stop>       inspect or control the forwarding bot
  plans                         list subscription plans
  subscription                  show subscription status
  watch                         poll bot status until interrupted
`

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		envPrefix  = flag.String("env-prefix", "TELEFWD", "environment variable prefix")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	core, err := client.New(cfg, logger, client.Options{})
	if err != nil {
		logger.Error("unable to construct client", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Session.Watch {
		watcher, err := core.Session().Watch(ctx)
		if err != nil {
			logger.Warn("credential watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", core.Metrics().Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	if err := run(ctx, core, cfg, flag.Args()); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Error("command failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, core *client.Client, cfg config.Config, args []string) error {
	command, rest := args[0], args[1:]
	switch command {
	case "login":
		if len(rest) != 1 {
			return fmt.Errorf("login requires exactly one email argument")
		}
		user, err := core.Login(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(user)
	case "register":
		if len(rest) != 2 {
			return fmt.Errorf("register requires email and username arguments")
		}
		user, err := core.Register(ctx, api.RegisterRequest{Email: rest[0], Username: rest[1]})
		if err != nil {
			return err
		}
		return printJSON(user)
	case "logout":
		return core.Logout()
	case "me":
		user, err := core.User(ctx)
		if err != nil {
			return err
		}
		return printJSON(user)
	case "channels":
		channels, err := core.Channels(ctx)
		if err != nil {
			return err
		}
		return printJSON(channels)
	case "available":
		available, err := core.AvailableChannels(ctx)
		if err != nil {
			return err
		}
		return printJSON(available)
	case "rules":
		rules, err := core.Rules(ctx)
		if err != nil {
			return err
		}
		return printJSON(rules)
	case "stats":
		stats, err := core.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	case "logs":
		days, limit, err := intArgs(rest, 7, 50)
		if err != nil {
			return err
		}
		logs, err := core.ForwardingLogs(ctx, days, limit)
		if err != nil {
			return err
		}
		return printJSON(logs)
	case "analytics":
		days, _, err := intArgs(rest, 30, 0)
		if err != nil {
			return err
		}
		snapshot, err := core.Analytics(ctx, days)
		if err != nil {
			return err
		}
		return printJSON(snapshot)
	case "performance":
		report, err := core.Performance(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	case "bot":
		return runBot(ctx, core, rest)
	case "plans":
		plans, err := core.Plans(ctx)
		if err != nil {
			return err
		}
		return printJSON(plans)
	case "subscription":
		status, err := core.Subscription(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)
	case "watch":
		return runWatch(ctx, core, cfg)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runBot(ctx context.Context, core *client.Client, rest []string) error {
	action := "status"
	if len(rest) > 0 {
		action = rest[0]
	}
	switch action {
	case "status":
		status, err := core.BotStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)
	case "start":
		return core.StartBot(ctx)
	case "stop":
		return core.StopBot(ctx)
	default:
		return fmt.Errorf("unknown bot action %q", action)
	}
}

func runWatch(ctx context.Context, core *client.Client, cfg config.Config) error {
	handle := core.WatchBotStatus(ctx, cfg.Cache.PollInterval())
	defer handle.Stop()

	ticker := time.NewTicker(cfg.Cache.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entry := core.Peek(client.KeyBotStatus)
			if entry.HasValue {
				if err := printJSON(entry.Value); err != nil {
					return err
				}
			}
		}
	}
}

func intArgs(rest []string, first, second int) (int, int, error) {
	var err error
	if len(rest) > 0 {
		if first, err = strconv.Atoi(rest[0]); err != nil {
			return 0, 0, fmt.Errorf("expected a number, got %q", rest[0])
		}
	}
	if len(rest) > 1 {
		if second, err = strconv.Atoi(rest[1]); err != nil {
			return 0, 0, fmt.Errorf("expected a number, got %q", rest[1])
		}
	}
	return first, second, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
