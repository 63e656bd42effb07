package domain

import "time"

// Capability は、外部APIの呼び出し種別を表します
type Capability string

const (
	CapabilityImageEdit     Capability = "image_edit"
	CapabilityImageCreate   Capability = "image_create"
	CapabilityVideoCreate   Capability = "video_create"
	CapabilityPromptEnhance Capability = "prompt_enhance"
	CapabilityVideoAnalyze  Capability = "video_analyze"
	CapabilityMusicStream   Capability = "music_stream"
)

// GenerationRequest は、1回の外部API呼び出しに対応するリクエストです
type GenerationRequest interface {
	Capability() Capability
}

// ImageEditRequest は、画像編集リクエストです
type ImageEditRequest struct {
	Images ImageSet
	Prompt string `validate:"required,max=2000"`
}

// Capability はリクエスト種別を返します
func (ImageEditRequest) Capability() Capability { return CapabilityImageEdit }

// ImageCreateRequest は、画像生成リクエストです
type ImageCreateRequest struct {
	Prompt      string `validate:"required,max=2000"`
	AspectRatio string `validate:"omitempty,oneof=1:1 3:4 4:3 9:16 16:9"`
}

// Capability はリクエスト種別を返します
func (ImageCreateRequest) Capability() Capability { return CapabilityImageCreate }

// VideoRequest は、動画生成リクエストです
type VideoRequest struct {
	Prompt          string `validate:"required,max=2000"`
	Model           string
	SeedImage       *EncodedImage
	DurationSeconds *int32 `validate:"omitempty,min=5,max=8"`
}

// Capability はリクエスト種別を返します
func (VideoRequest) Capability() Capability { return CapabilityVideoCreate }

// PromptEnhanceRequest は、プロンプト改善リクエストです。
// CurrentPromptが空の場合は新しいプロンプトを生成します。
type PromptEnhanceRequest struct {
	CurrentPrompt string `validate:"max=2000"`
	Music         bool
}

// Capability はリクエスト種別を返します
func (PromptEnhanceRequest) Capability() Capability { return CapabilityPromptEnhance }

// VideoAnalyzeRequest は、フレーム列を使った動画解析リクエストです
type VideoAnalyzeRequest struct {
	Frames []string `validate:"required,min=1,max=16,dive,required"`
}

// Capability はリクエスト種別を返します
func (VideoAnalyzeRequest) Capability() Capability { return CapabilityVideoAnalyze }

// WeightedPrompt は、重み付きのテキスト指示です
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// MusicGenerationConfig は、ストリーミング音楽生成のパラメータです
type MusicGenerationConfig struct {
	BPM         int     `json:"bpm,omitempty"`
	Temperature float64 `json:"temperature"`
}

// MusicRequest は、音楽ストリーミングセッションの開始リクエストです
type MusicRequest struct {
	Prompt          string  `validate:"required,max=2000"`
	BPM             int     `validate:"min=60,max=200"`
	Temperature     float64 `validate:"gte=0,lte=3"`
	DurationSeconds int     `validate:"min=1,max=300"`
}

// Capability はリクエスト種別を返します
func (MusicRequest) Capability() Capability { return CapabilityMusicStream }

// Duration は自動停止までの時間を返します
func (r MusicRequest) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// WeightedPrompts はセッションに送る重み付きプロンプト列を返します
func (r MusicRequest) WeightedPrompts() []WeightedPrompt {
	return []WeightedPrompt{{Text: r.Prompt, Weight: 1.0}}
}

// GenerationConfig はセッションに送る生成パラメータを返します
func (r MusicRequest) GenerationConfig() MusicGenerationConfig {
	return MusicGenerationConfig{BPM: r.BPM, Temperature: r.Temperature}
}
