// Command wegram runs the WeChat<->Telegram bridge: load configuration,
// build the bridge, and run it until an interrupt signal arrives.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hououinkami/wegram/internal/bridge"
	"github.com/hououinkami/wegram/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the bridge's YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging.MinLevel, cfg.Logging.Filename)

	b, err := bridge.New(cfg, log)
	if err != nil {
		log.Error("construct bridge", "error", err)
		os.Exit(1)
	}
	b.CodePrompt = consolePrompt("login code")
	b.PasswordPrompt = consolePrompt("2FA password")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting wegram bridge", "wechat_mode", cfg.WeChat.Mode, "telegram_mode", cfg.Telegram.Mode)
	if err := b.Start(ctx); err != nil {
		log.Error("bridge exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("bridge stopped")
}

// newLogger builds the slog text handler every component narrows with
// .With("component", ...), writing to filename if set, stderr otherwise.
func newLogger(minLevel, filename string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(minLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// consolePrompt reads one line from stdin, for the first-run interactive
// Telegram user-session login (login code and 2FA password).
func consolePrompt(label string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		fmt.Fprintf(os.Stderr, "enter %s: ", label)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read %s: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}
}
