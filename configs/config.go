package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mediastudio/internal/infrastructure/config"

	"github.com/joho/godotenv"
)

// Config は、アプリケーション全体の設定を定義します
type Config struct {
	Discord config.DiscordConfig
	Gemini  config.GeminiConfig
	Music   config.MusicConfig
	Studio  config.StudioConfig
	Log     config.LogConfig
}

// LoadConfig は、環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込み（ファイルが存在しない場合は無視）
	if err := godotenv.Load(); err != nil {
		fmt.Printf("警告: .envファイルの読み込みに失敗しました: %v\n", err)
	}

	gemini := config.DefaultGeminiConfig()
	music := config.DefaultMusicConfig()
	studio := config.DefaultStudioConfig()

	cfg := &Config{
		Discord: config.DiscordConfig{
			BotToken: getEnvOrDefault("DISCORD_BOT_TOKEN", ""),
		},
		Gemini: config.GeminiConfig{
			APIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
			TextModel:      getEnvOrDefault("GEMINI_TEXT_MODEL", gemini.TextModel),
			ImageEditModel: getEnvOrDefault("GEMINI_IMAGE_EDIT_MODEL", gemini.ImageEditModel),
			ImageModel:     getEnvOrDefault("GEMINI_IMAGE_MODEL", gemini.ImageModel),
			VideoModel:     getEnvOrDefault("GEMINI_VIDEO_MODEL", gemini.VideoModel),
			Temperature:    float32(getEnvAsFloatOrDefault("GEMINI_TEMPERATURE", float64(gemini.Temperature))),
			TopP:           float32(getEnvAsFloatOrDefault("GEMINI_TOP_P", float64(gemini.TopP))),
			PollInterval:   getEnvAsDurationOrDefault("VIDEO_POLL_INTERVAL", gemini.PollInterval),
		},
		Music: config.MusicConfig{
			Endpoint:           getEnvOrDefault("MUSIC_ENDPOINT", music.Endpoint),
			Model:              getEnvOrDefault("MUSIC_MODEL", music.Model),
			DefaultBPM:         getEnvAsIntOrDefault("MUSIC_DEFAULT_BPM", music.DefaultBPM),
			DefaultTemperature: getEnvAsFloatOrDefault("MUSIC_DEFAULT_TEMPERATURE", music.DefaultTemperature),
			DefaultDuration:    getEnvAsDurationOrDefault("MUSIC_DEFAULT_DURATION", music.DefaultDuration),
			HandshakeTimeout:   getEnvAsDurationOrDefault("MUSIC_HANDSHAKE_TIMEOUT", music.HandshakeTimeout),
		},
		Studio: config.StudioConfig{
			VideoTimeout:   getEnvAsDurationOrDefault("VIDEO_TIMEOUT", studio.VideoTimeout),
			RequestTimeout: getEnvAsDurationOrDefault("REQUEST_TIMEOUT", studio.RequestTimeout),
			FFmpegPath:     getEnvOrDefault("FFMPEG_PATH", studio.FFmpegPath),
			FFprobePath:    getEnvOrDefault("FFPROBE_PATH", studio.FFprobePath),
			AssetTTL:       getEnvAsDurationOrDefault("ASSET_TTL", studio.AssetTTL),
			VisualizerGIF:  getEnvAsBoolOrDefault("VISUALIZER_GIF", studio.VisualizerGIF),
		},
		Log: config.LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}

	// 必須設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は、設定の妥当性を検証します
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN が設定されていません")
	}

	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY が設定されていません")
	}

	if c.Gemini.PollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL は正の値である必要があります")
	}

	if c.Studio.VideoTimeout <= 0 {
		return fmt.Errorf("VIDEO_TIMEOUT は正の値である必要があります")
	}

	if c.Studio.VideoTimeout < c.Gemini.PollInterval {
		return fmt.Errorf("VIDEO_TIMEOUT は VIDEO_POLL_INTERVAL 以上である必要があります")
	}

	if c.Studio.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT は正の値である必要があります")
	}

	if c.Music.DefaultBPM < 60 || c.Music.DefaultBPM > 200 {
		return fmt.Errorf("MUSIC_DEFAULT_BPM は60から200の範囲である必要があります")
	}

	if c.Music.DefaultTemperature < 0 || c.Music.DefaultTemperature > 3 {
		return fmt.Errorf("MUSIC_DEFAULT_TEMPERATURE は0から3の範囲である必要があります")
	}

	if c.Music.DefaultDuration < time.Second || c.Music.DefaultDuration > 5*time.Minute {
		return fmt.Errorf("MUSIC_DEFAULT_DURATION は1秒から5分の範囲である必要があります")
	}

	if !strings.HasPrefix(c.Music.Endpoint, "ws://") && !strings.HasPrefix(c.Music.Endpoint, "wss://") {
		return fmt.Errorf("MUSIC_ENDPOINT はws://またはwss://で始まる必要があります")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT はjsonまたはconsoleである必要があります")
	}

	return nil
}

// getEnvOrDefault は、環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は、環境変数を整数として取得し、存在しない場合はデフォルト値を返します
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault は、環境変数を浮動小数点数として取得し、存在しない場合はデフォルト値を返します
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は、環境変数を時間として取得し、存在しない場合はデフォルト値を返します
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は、環境変数を真偽値として取得し、存在しない場合はデフォルト値を返します
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
