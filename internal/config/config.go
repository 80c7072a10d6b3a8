// Package config loads and validates the bridge's YAML configuration,
// expanding ${VAR}-style references against the process environment before
// unmarshalling.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree. Every field maps to one of the
// environment variables enumerated in the external-interfaces section of
// the bridge's design notes; the YAML file is expected to reference them
// via ${VAR} and is expanded with os.ExpandEnv before parsing.
type Config struct {
	WeChat    WeChatConfig    `yaml:"wechat"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Logging   LoggingConfig   `yaml:"logging"`
	Localize  LocalizeConfig  `yaml:"localize"`
}

// WeChatConfig describes the gateway identity and ingress mode.
type WeChatConfig struct {
	MyWxid      string `yaml:"my_wxid"`
	PushWxid    string `yaml:"push_wxid"`
	DeviceID    string `yaml:"device_id"`
	DeviceModel string `yaml:"device_model"`
	BaseURL     string `yaml:"base_url"`

	Mode         string `yaml:"mode"` // "callback" | "queue"
	CallbackPort int    `yaml:"callback_port"`
	RabbitMQURL  string `yaml:"rabbitmq_url"`
}

// TelegramConfig describes both the bot and user-session credentials.
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	APIID       int    `yaml:"api_id"`
	APIHash     string `yaml:"api_hash"`
	PhoneNumber string `yaml:"phone_number"`

	Mode          string `yaml:"mode"` // "polling" | "webhook"
	WebhookDomain string `yaml:"webhook_domain"`
	WebhookPort   int    `yaml:"webhook_port"`
	SSLCertName   string `yaml:"ssl_cert_name"`
	SSLKeyName    string `yaml:"ssl_key_name"`

	ChatFolder    string `yaml:"chat_folder"`
	OfficalFolder string `yaml:"offical_folder"`
}

// StorageConfig points at the persistent-state files named in §6.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	ContactDB    string `yaml:"contact_db"`
	StickerDB    string `yaml:"sticker_db"`
	WeatherDB    string `yaml:"weather_db"`
	MomentsFile  string `yaml:"moments_file"`
	MsgIDDir     string `yaml:"msgid_dir"`
	SessionFile  string `yaml:"session_file"`
	DownloadDir  string `yaml:"download_dir"`
}

// BridgeConfig carries the control-plane switches of §6.
type BridgeConfig struct {
	AutoCreateGroups bool     `yaml:"auto_create_groups"`
	EnableBlacklist  bool     `yaml:"enable_blacklist"`
	Blacklist        []string `yaml:"blacklist"`
	MaxRatio         float64  `yaml:"max_ratio"`
	MaxSizeMB        int      `yaml:"max_size_mb"`
	DedupCapacity    int      `yaml:"dedup_capacity"`
	DedupTTLSeconds  int      `yaml:"dedup_ttl_seconds"`
}

// LoggingConfig controls the log/slog text handler set up in cmd/wegram.
type LoggingConfig struct {
	MinLevel string `yaml:"min_level"`
	Filename string `yaml:"filename"`
}

// LocalizeConfig selects the string table used for user-visible replies.
type LocalizeConfig struct {
	Lang string `yaml:"lang"` // "zh" | "ja"
}

// Load reads path, expands environment references, unmarshals into a
// Config, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate fills in defaults and rejects configurations missing a required
// field. Defaults mirror the values named in the bridge's external
// interfaces documentation.
func (c *Config) Validate() error {
	if c.WeChat.MyWxid == "" {
		return fmt.Errorf("wechat.my_wxid is required")
	}
	if c.WeChat.DeviceModel == "" {
		c.WeChat.DeviceModel = "WeGram"
	}
	if c.WeChat.Mode == "" {
		c.WeChat.Mode = "callback"
	}
	if c.WeChat.Mode != "callback" && c.WeChat.Mode != "queue" {
		return fmt.Errorf("wechat.mode must be callback or queue, got %q", c.WeChat.Mode)
	}
	if c.WeChat.CallbackPort == 0 {
		c.WeChat.CallbackPort = 8088
	}
	if c.WeChat.Mode == "queue" && c.WeChat.RabbitMQURL == "" {
		return fmt.Errorf("wechat.rabbitmq_url is required when wechat.mode is queue")
	}

	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("telegram.api_id is required")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash is required")
	}
	if c.Telegram.PhoneNumber == "" {
		return fmt.Errorf("telegram.phone_number is required")
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.Telegram.Mode != "polling" && c.Telegram.Mode != "webhook" {
		return fmt.Errorf("telegram.mode must be polling or webhook, got %q", c.Telegram.Mode)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookDomain == "" {
		return fmt.Errorf("telegram.webhook_domain is required when telegram.mode is webhook")
	}
	if c.Telegram.ChatFolder == "" {
		c.Telegram.ChatFolder = "聊天"
	}
	if c.Telegram.OfficalFolder == "" {
		c.Telegram.OfficalFolder = "公众号"
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "."
	}
	if c.Storage.ContactDB == "" {
		c.Storage.ContactDB = "database/contact.db"
	}
	if c.Storage.StickerDB == "" {
		c.Storage.StickerDB = "database/sticker.json"
	}
	if c.Storage.WeatherDB == "" {
		c.Storage.WeatherDB = "database/weather.db"
	}
	if c.Storage.MomentsFile == "" {
		c.Storage.MomentsFile = "database/moments.txt"
	}
	if c.Storage.MsgIDDir == "" {
		c.Storage.MsgIDDir = "msgid"
	}
	if c.Storage.SessionFile == "" {
		c.Storage.SessionFile = "sessions/tg_session"
	}
	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = "download"
	}

	if c.Bridge.MaxRatio == 0 {
		c.Bridge.MaxRatio = 4.0
	}
	if c.Bridge.MaxSizeMB == 0 {
		c.Bridge.MaxSizeMB = 10
	}
	if c.Bridge.DedupCapacity == 0 {
		// spec.md §4.6 names 1000; §9 flags it as too small for real bursts
		// and recommends 10,000 as the new default. Capacity stays
		// configurable so an operator can tune it per account size.
		c.Bridge.DedupCapacity = 10000
	}
	if c.Bridge.DedupTTLSeconds == 0 {
		c.Bridge.DedupTTLSeconds = 3600
	}

	if c.Logging.MinLevel == "" {
		c.Logging.MinLevel = "info"
	}

	if c.Localize.Lang == "" {
		c.Localize.Lang = "zh"
	}
	if c.Localize.Lang != "zh" && c.Localize.Lang != "ja" {
		return fmt.Errorf("localize.lang must be zh or ja, got %q", c.Localize.Lang)
	}

	return nil
}
