package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/bridge"
	"github.com/dalnet/chanbridge/internal/chat"
	"github.com/dalnet/chanbridge/internal/commands"
	"github.com/dalnet/chanbridge/internal/commits"
	"github.com/dalnet/chanbridge/internal/config"
	"github.com/dalnet/chanbridge/internal/feed"
	"github.com/dalnet/chanbridge/internal/irc"
	"github.com/dalnet/chanbridge/internal/server"
	"github.com/dalnet/chanbridge/internal/storage"
	"github.com/dalnet/chanbridge/internal/webhook"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the channel bot and the web bridge",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func versionString() string {
	return "chanbridge " + version
}

func ircOptions(cfg *config.Config) irc.Options {
	return irc.Options{
		Host:          cfg.IRC.Host,
		Port:          cfg.IRC.PortNumber(),
		Channel:       cfg.IRC.Channel,
		Key:           cfg.IRC.Key,
		Nick:          cfg.IRC.Nickname,
		Password:      cfg.IRC.Password,
		TLS:           cfg.IRC.TLS,
		CheckInterval: cfg.Watchdog.CheckInterval,
		BackoffBase:   cfg.Watchdog.BackoffBase,
	}
}

// behaviors builds the configured behaviors, in configuration order.
// bridgeConfig holds the defaults for web sessions. Sessions joining the
// configured channel use its key.
func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		Host:          cfg.IRC.Host,
		Port:          cfg.IRC.PortNumber(),
		Channel:       cfg.IRC.Channel,
		Key:           cfg.IRC.Key,
		TLS:           cfg.IRC.TLS,
		EscapePrefix:  cfg.Bridge.EscapePrefix,
		Version:       versionString(),
		CheckInterval: cfg.Watchdog.CheckInterval,
		BackoffBase:   cfg.Watchdog.BackoffBase,
	}
}

func behaviors(cfg *config.Config, log *zap.Logger) ([]bot.Behavior, error) {
	var out []bot.Behavior
	for _, name := range cfg.Bot.Behaviors {
		switch name {
		case "commands":
			out = append(out, commands.New())
		case "chat":
			out = append(out, chat.New())
		case "github":
			out = append(out, commits.GitHub(cfg.Webhook.Prefix))
		case "bitbucket":
			out = append(out, commits.Bitbucket(cfg.Webhook.Prefix))
		case "feed":
			poller := feed.NewPoller(cfg.Feed.URLs, feed.NewHTTPFetcher(nil), log.Named("feed"))
			out = append(out, feed.New(poller, cfg.Feed.Interval))
		default:
			return nil, fmt.Errorf("unknown behavior %q", name)
		}
	}
	return out, nil
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := storage.Open(storage.Config{
		Driver:    cfg.Storage.Driver,
		Path:      cfg.Storage.Path,
		QueueSize: cfg.Storage.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("failed to open message store: %w", err)
	}
	var sink bot.Sink
	if store != nil {
		queue := storage.NewQueue(store, cfg.Storage.QueueSize, log.Named("storage"))
		defer func() {
			if err := queue.Close(); err != nil {
				log.Warn("Closing message store", zap.Error(err))
			}
			if n := queue.Dropped(); n > 0 {
				log.Warn("Messages dropped while the store was behind", zap.Int64("dropped", n))
			}
		}()
		sink = queue
	}

	g, ctx := errgroup.WithContext(ctx)
	opts := server.Options{
		Addr:          cfg.HTTP.Listen,
		WebhookPrefix: cfg.Webhook.Prefix,
	}

	// The webhook endpoint stays up with the bot disabled and answers 404.
	var router webhook.Router
	if cfg.Bot.Enabled {
		bs, err := behaviors(cfg, log)
		if err != nil {
			return err
		}
		rt := bot.New(bot.Options{
			IRC:     ircOptions(cfg),
			Version: versionString(),
			Sink:    sink,
			Logger:  log,
		}, bs...)
		router = rt
		g.Go(func() error { return rt.Run(ctx) })
	}
	opts.Webhooks = webhook.NewHandler(router, log.Named("webhook"))

	if cfg.Bridge.Enabled {
		h := bridge.NewHandler(bridgeConfig(cfg), cfg.HTTP.AllowedOrigins, log.Named("bridge"))
		opts.Bridge = h
		opts.OnShutdown = h.Close
		defer h.Close()
	}

	srv := server.New(opts, log.Named("http"))
	g.Go(func() error { return srv.Run(ctx) })

	log.Info("chanbridge started",
		zap.String("version", version),
		zap.String("server", cfg.IRC.Host),
		zap.String("channel", cfg.IRC.Channel),
		zap.Bool("bot", cfg.Bot.Enabled),
		zap.Bool("bridge", cfg.Bridge.Enabled))
	return g.Wait()
}
