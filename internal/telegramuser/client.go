package telegramuser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Client wraps a gotd telegram.Client with the single-owning-goroutine
// proxy design spec.md §4.3/§9 calls for.
type Client struct {
	tg    *telegram.Client
	api   *tg.Client
	proxy *Proxy
	log   *slog.Logger

	appID   int
	appHash string
	phone   string
}

// Config names the inputs New needs to build a Client.
type Config struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionPath string
	CodePrompt  CodePrompt
	PasswordPrompt CodePrompt
	Log         *slog.Logger
}

// New constructs a Client with a file-backed session and a flood-wait
// middleware (gotd/contrib), so an implicit FLOOD_WAIT response from a
// group-creation/folder call is retried in place rather than surfaced as an
// error the caller must handle.
func New(cfg Config) *Client {
	waiter := floodwait.NewSimpleWaiter()
	opts := telegram.Options{
		SessionStorage: &FileSessionStorage{Path: cfg.SessionPath},
		Middlewares:    []telegram.Middleware{waiter},
	}
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, opts)
	return &Client{
		tg:      client,
		api:     client.API(),
		proxy:   NewProxy(32),
		log:     cfg.Log.With("component", "telegramuser"),
		appID:   cfg.APIID,
		appHash: cfg.APIHash,
		phone:   cfg.PhoneNumber,
	}
}

// Run authenticates (if needed) and drives the gotd client's update loop on
// the calling goroutine until ctx is canceled; the cross-thread proxy runs
// on its own goroutine, started inside the run callback.
func (c *Client) Run(ctx context.Context, codePrompt, passwordPrompt CodePrompt) error {
	return c.tg.Run(ctx, func(ctx context.Context) error {
		status, err := c.tg.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("check auth status: %w", err)
		}
		if !status.Authorized {
			flow := auth.NewFlow(PhoneAuthenticator{
				PhoneNumber:    c.phone,
				CodePrompt:     codePrompt,
				PasswordPrompt: passwordPrompt,
			}, auth.SendCodeOptions{})
			if err := c.tg.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("authenticate user client: %w", err)
			}
		}

		go c.proxy.Run(ctx)
		<-ctx.Done()
		return ctx.Err()
	})
}

// Invoke submits fn to run on the client's owning goroutine and returns its
// result. Use this from any goroutine other than the one running Run.
func (c *Client) Invoke(ctx context.Context, fn func(ctx context.Context, api *tg.Client) (any, error)) (any, error) {
	return c.proxy.Submit(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx, c.api)
	})
}

// API exposes the raw tg.Client for calls made from the proxy goroutine
// itself (inside a function already running through Invoke), where Invoke
// would deadlock.
func (c *Client) API() *tg.Client { return c.api }

// Self returns the authenticated user's own tg.User.
func (c *Client) Self(ctx context.Context) (*tg.User, error) {
	result, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		full, err := api.UsersGetFullUser(ctx, &tg.InputUserSelf{})
		if err != nil {
			return nil, err
		}
		for _, u := range full.Users {
			if user, ok := u.(*tg.User); ok && user.Self {
				return user, nil
			}
		}
		return nil, fmt.Errorf("telegramuser: self user not found in response")
	})
	if err != nil {
		return nil, err
	}
	return result.(*tg.User), nil
}

// Close stops the cross-thread proxy.
func (c *Client) Close() { c.proxy.Close() }
