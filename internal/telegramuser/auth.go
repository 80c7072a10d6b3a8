package telegramuser

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// CodePrompt asks the operator for the login code/2FA password Telegram
// sent, or an error if none is available (e.g. headless operation with no
// interactive surface attached).
type CodePrompt func(ctx context.Context) (string, error)

// PhoneAuthenticator implements auth.UserAuthenticator for a single,
// already-known phone number, adapted from KurtSkinny-telegram-userbot's
// TerminalAuthenticator: phone is fixed rather than read interactively, and
// the code/password prompts are injected callbacks supplied by the caller
// of Client.Run instead of a direct terminal readline (cmd/wegram wires
// console prompts).
type PhoneAuthenticator struct {
	PhoneNumber string
	CodePrompt  CodePrompt
	PasswordPrompt CodePrompt
}

func (p PhoneAuthenticator) Phone(_ context.Context) (string, error) {
	return p.PhoneNumber, nil
}

func (p PhoneAuthenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	if p.CodePrompt == nil {
		return "", fmt.Errorf("telegramuser: no code prompt configured")
	}
	return p.CodePrompt(ctx)
}

func (p PhoneAuthenticator) Password(ctx context.Context) (string, error) {
	if p.PasswordPrompt == nil {
		return "", fmt.Errorf("telegramuser: 2FA requested but no password prompt configured")
	}
	return p.PasswordPrompt(ctx)
}

func (p PhoneAuthenticator) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (p PhoneAuthenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("telegramuser: sign-up not supported, phone number must already be registered")
}
