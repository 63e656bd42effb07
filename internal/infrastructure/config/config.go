package config

import "time"

// GeminiConfig は、Gemini API関連の設定を定義します
type GeminiConfig struct {
	APIKey         string
	TextModel      string // プロンプト改善・動画解析用モデル名
	ImageEditModel string // 画像編集用モデル名
	ImageModel     string // 画像生成用モデル名
	VideoModel     string // 動画生成用のデフォルトモデル名
	Temperature    float32
	TopP           float32
	PollInterval   time.Duration // 動画生成オペレーションのポーリング間隔
}

// DefaultGeminiConfig は、デフォルトのGemini設定を返します
func DefaultGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		TextModel:      "gemini-2.5-flash",
		ImageEditModel: "gemini-2.5-flash-image",
		ImageModel:     "imagen-4.0-generate-001",
		VideoModel:     "veo-2.0-generate-001",
		Temperature:    0.9,
		TopP:           0.95,
		PollInterval:   10 * time.Second,
	}
}

// MusicConfig は、音楽ストリーミングセッション関連の設定を定義します
type MusicConfig struct {
	Endpoint           string
	Model              string
	DefaultBPM         int
	DefaultTemperature float64
	DefaultDuration    time.Duration
	HandshakeTimeout   time.Duration
}

// DefaultMusicConfig は、デフォルトの音楽設定を返します
func DefaultMusicConfig() *MusicConfig {
	return &MusicConfig{
		Endpoint:           "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic",
		Model:              "models/lyria-realtime-exp",
		DefaultBPM:         120,
		DefaultTemperature: 1.0,
		DefaultDuration:    30 * time.Second,
		HandshakeTimeout:   15 * time.Second,
	}
}

// StudioConfig は、メディア処理全般の設定を定義します
type StudioConfig struct {
	VideoTimeout   time.Duration // 動画生成全体のタイムアウト
	RequestTimeout time.Duration // 同期APIのタイムアウト
	FFmpegPath     string
	FFprobePath    string
	AssetTTL       time.Duration // 生成物をメモリに保持する最大時間
	VisualizerGIF  bool          // 音楽生成時にビジュアライザーGIFを添付するか
}

// DefaultStudioConfig は、デフォルトのスタジオ設定を返します
func DefaultStudioConfig() *StudioConfig {
	return &StudioConfig{
		VideoTimeout:   10 * time.Minute,
		RequestTimeout: 2 * time.Minute,
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		AssetTTL:       time.Hour,
		VisualizerGIF:  true,
	}
}

// DiscordConfig は、Discord関連の設定を定義します
type DiscordConfig struct {
	BotToken string
}

// LogConfig は、ログ出力の設定を定義します
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}
