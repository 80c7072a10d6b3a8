// Package bridge wires every component (A-K) and the ambient stack
// together into a single running process, the way the teacher's own
// bridge.go does for its Matrix side — one struct holding every
// collaborator, a New that constructs them in dependency order, and a
// Start that runs them and tears them down in reverse before returning.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hououinkami/wegram/internal/command"
	"github.com/hououinkami/wegram/internal/config"
	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/dispatcher"
	"github.com/hououinkami/wegram/internal/gateway"
	"github.com/hououinkami/wegram/internal/media"
	"github.com/hououinkami/wegram/internal/metrics"
	"github.com/hououinkami/wegram/internal/peripheral"
	"github.com/hououinkami/wegram/internal/provision"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/revoke"
	"github.com/hououinkami/wegram/internal/telegrambot"
	"github.com/hououinkami/wegram/internal/telegramuser"
	"github.com/hououinkami/wegram/internal/translate"
	"github.com/hououinkami/wegram/internal/wire"
)

// Bridge is the top-level orchestrator tying the WeChat gateway, both
// Telegram clients, the registry/correlator persistence, the translation
// layer, the command surface and the ambient metrics/peripheral drivers
// into one running process.
type Bridge struct {
	Config *config.Config
	Log    *slog.Logger

	Gateway  *gateway.Client
	Bot      *telegrambot.Client
	TgUser   *telegramuser.Client
	Registry *registry.Registry
	Corr     *correlator.Correlator

	Translator *translate.Translator
	Groups     *translate.GroupCache
	Provision  *provision.Provisioner
	Revoke     *revoke.Handler
	Commands   *command.Registry
	Timers     *command.TimerScheduler

	Dispatcher *dispatcher.Dispatcher
	callback   *dispatcher.CallbackHandler
	broker     *dispatcher.BrokerSource

	Metrics    *metrics.Metrics
	Peripheral *peripheral.Registry

	// CodePrompt/PasswordPrompt gather the Telegram login code / 2FA
	// password on first run; main.go wires these to a stdin reader. Left
	// nil, an unauthorized session simply fails to start.
	CodePrompt     telegramuser.CodePrompt
	PasswordPrompt telegramuser.CodePrompt

	httpServer    *http.Server
	metricsServer *http.Server

	mu      sync.Mutex
	running bool
}

// New constructs every collaborator from cfg without starting any
// long-running loop; call Start to bring the bridge up.
func New(cfg *config.Config, log *slog.Logger) (*Bridge, error) {
	b := &Bridge{Config: cfg, Log: log}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(cfg.Storage.DataDir, cfg.Storage.ContactDB)), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	b.Metrics = metrics.New()

	b.Gateway = gateway.New(cfg.WeChat.BaseURL, cfg.WeChat.MyWxid, log)
	b.Bot = telegrambot.New(cfg.Telegram.BotToken, log)

	sessionPath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.SessionFile)
	if err := os.MkdirAll(filepath.Dir(sessionPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	b.TgUser = telegramuser.New(telegramuser.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		PhoneNumber: cfg.Telegram.PhoneNumber,
		SessionPath: sessionPath,
		Log:         log,
	})

	reg, err := registry.Open(context.Background(), filepath.Join(cfg.Storage.DataDir, cfg.Storage.ContactDB))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	b.Registry = reg

	stickerDB := filepath.Join(cfg.Storage.DataDir, "database", "sticker.bolt")
	stickers, err := registry.OpenStickerIndex(stickerDB, filepath.Join(cfg.Storage.DataDir, cfg.Storage.StickerDB))
	if err != nil {
		return nil, fmt.Errorf("open sticker index: %w", err)
	}
	b.Registry.Stickers = stickers

	corr, err := correlator.New(filepath.Join(cfg.Storage.DataDir, cfg.Storage.MsgIDDir))
	if err != nil {
		return nil, fmt.Errorf("open correlator: %w", err)
	}
	b.Corr = corr

	voiceTempDir := filepath.Join(cfg.Storage.DataDir, "tmp")
	if err := os.MkdirAll(voiceTempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create voice temp dir: %w", err)
	}
	voice, err := media.NewVoiceConverter(voiceTempDir)
	if err != nil {
		return nil, fmt.Errorf("init voice converter: %w", err)
	}
	sticker, err := media.NewStickerConverter()
	if err != nil {
		return nil, fmt.Errorf("init sticker converter: %w", err)
	}
	downloader := media.NewTelegramDownloader(b.Bot)

	b.Groups = translate.NewGroupCache(b.Gateway)
	b.Provision = provision.New(b.TgUser, b.Bot, b.Registry, cfg.Telegram.ChatFolder, log)

	b.Translator = &translate.Translator{
		GW:        b.Gateway,
		Bot:       b.Bot,
		Reg:       b.Registry,
		Corr:      b.Corr,
		Groups:    b.Groups,
		Voice:     voice,
		Sticker:   sticker,
		Files:     downloader,
		MyWxid:    cfg.WeChat.MyWxid,
		Provision: b.Provision,
		Log:       log,
	}

	b.Revoke = revoke.New(b.Gateway, b.Bot, b.Corr, log)
	b.Revoke.Lang = cfg.Localize.Lang
	b.Timers = command.NewTimerScheduler()
	b.Commands = command.New(b.Registry, b.Gateway, b.Bot, b.TgUser, b.Corr, b.Revoke, b.Provision, b.Groups,
		cfg.Telegram.ChatFolder, cfg.Storage.DataDir, b.Timers, log)
	b.Commands.Lang = cfg.Localize.Lang
	b.Commands.RegisterDefaults()

	b.Dispatcher = dispatcher.New(b.handleWeChatMessage, b, cfg.Bridge.DedupCapacity, cfg.Bridge.DedupTTLSeconds, log)
	b.callback = dispatcher.NewCallbackHandler(b.Dispatcher)

	b.Peripheral = peripheral.New(log)
	b.Peripheral.Register(peripheral.NewsWeatherPusher())
	b.Peripheral.Register(peripheral.MomentsExtractor())
	b.Peripheral.Register(peripheral.LoginHeartbeatMonitor())

	return b, nil
}

// handleWeChatMessage adapts translate.TranslateInbound to the
// dispatcher.Handler signature (G)'s entry point.
func (b *Bridge) handleWeChatMessage(ctx context.Context, msg wire.AddMsg) error {
	start := time.Now()
	err := b.Translator.TranslateInbound(ctx, msg)
	b.Metrics.ObserveWeChatToTelegramLatency(time.Since(start))
	if err != nil {
		b.Metrics.IncrMessagesFailed()
		b.Metrics.IncrGatewayErrors()
		return err
	}
	b.Metrics.IncrMessagesReceived()
	return nil
}

// NotifyPresence implements dispatcher.PresenceNotifier: a control-message
// online/offline transition updates the connected gauge, and a logout is
// logged as a warning. Telegram-side sends are not paused while logged out.
func (b *Bridge) NotifyPresence(ctx context.Context, online bool) {
	b.Metrics.SetConnected(online)
	if !online {
		b.Log.Warn("wechat session reported logged out")
	}
}

// Start brings every long-running piece of the bridge up: the user-session
// client's own update loop, the chosen WeChat ingress source, the Telegram
// Bot API poller, the peripheral drivers, and the metrics HTTP server.
// Start blocks until ctx is canceled or a fatal error occurs.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bridge already running")
	}
	b.running = true
	b.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.TgUser.Run(ctx, b.CodePrompt, b.PasswordPrompt); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("user-session client: %w", err)
		}
	}()

	switch b.Config.WeChat.Mode {
	case "queue":
		broker, err := dispatcher.DialBroker(b.Config.WeChat.RabbitMQURL, "wegram.sync", b.Log)
		if err != nil {
			return fmt.Errorf("dial broker: %w", err)
		}
		b.broker = broker
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := broker.Consume(ctx, b.Dispatcher); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("broker consumer: %w", err)
			}
		}()
	default:
		mux := http.NewServeMux()
		mux.Handle("/msg/SyncMessage/"+b.Config.WeChat.MyWxid, b.callback)
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		})
		b.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", b.Config.WeChat.CallbackPort), Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("callback server: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Bot.Poll(ctx, func(u telegrambot.Update) { b.handleTelegramUpdate(ctx, u) })
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Peripheral.Run(ctx)
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", b.Metrics.Handler())
	b.metricsServer = &http.Server{Addr: ":9090", Handler: metricsMux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		b.Log.Error("bridge component failed, shutting down", "error", err)
	}

	b.shutdown()
	wg.Wait()
	return nil
}

func (b *Bridge) shutdown() {
	b.Timers.Shutdown()
	b.Dispatcher.Close()
	if b.broker != nil {
		_ = b.broker.Close()
	}
	if b.httpServer != nil {
		_ = b.httpServer.Shutdown(context.Background())
	}
	if b.metricsServer != nil {
		_ = b.metricsServer.Shutdown(context.Background())
	}
	b.TgUser.Close()
	if err := b.Registry.Close(); err != nil {
		b.Log.Warn("close registry", "error", err)
	}
}
