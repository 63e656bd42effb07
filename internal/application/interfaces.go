package application

import (
	"context"

	"mediastudio/internal/domain"
)

// MediaGenerator は、外部の生成APIを抽象化するインターフェースです
type MediaGenerator interface {
	EditImage(ctx context.Context, images domain.ImageSet, prompt string) (*domain.EditResult, error)
	GenerateImages(ctx context.Context, prompt, aspectRatio string) (*domain.ImageResult, error)
	GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoAsset, error)
	EnhancePrompt(ctx context.Context, current string) (string, error)
	EnhanceMusicPrompt(ctx context.Context, current string) (string, error)
	AnalyzeVideoForSound(ctx context.Context, frames []string) (*domain.AnalysisResult, error)
	SuggestDialogue(ctx context.Context, frames []string) (string, error)
}

// MusicStream は、確立済みの音楽ストリーミングセッションです。
// Messages()は終了後に閉じられるまで到着順にメッセージを送ります。
type MusicStream interface {
	SendWeightedPrompts(prompts []domain.WeightedPrompt) error
	SendGenerationConfig(cfg domain.MusicGenerationConfig) error
	Play() error
	Stop() error
	Close() error
	Messages() <-chan domain.SessionMessage
}

// MusicTransport は、音楽ストリーミングセッションを開くインターフェースです
type MusicTransport interface {
	Open(ctx context.Context) (MusicStream, error)
}

// FrameExtractor は、動画ファイルから一定間隔のフレームを抽出するインターフェースです
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, path string, progress func(float64)) ([]string, error)
}

// PreviewRenderer は、WAV音声からプレビュー画像を作成するインターフェースです
type PreviewRenderer interface {
	RenderPreview(ctx context.Context, wav []byte) ([]byte, error)
}

// AssetStore は、生成物をハンドルで管理するストアのインターフェースです
type AssetStore interface {
	Put(asset domain.Asset) string
	Get(handle string) (domain.Asset, error)
	Revoke(handle string)
	Replace(view string, asset domain.Asset) string
	ClearView(view string)
}
