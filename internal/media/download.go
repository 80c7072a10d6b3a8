package media

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hououinkami/wegram/internal/telegrambot"
)

// TelegramDownloader implements translate.Downloader over the Bot API's
// getFile + file.telegram.org convention.
type TelegramDownloader struct {
	bot *telegrambot.Client
	http *http.Client
}

// NewTelegramDownloader wraps bot for file downloads.
func NewTelegramDownloader(bot *telegrambot.Client) *TelegramDownloader {
	return &TelegramDownloader{bot: bot, http: &http.Client{}}
}

// Download resolves fileID to a download URL via getFile and fetches it.
func (d *TelegramDownloader) Download(ctx context.Context, fileID string) ([]byte, error) {
	f, err := d.bot.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("getFile %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.bot.FileURL(f), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download file %s: http %d", fileID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
