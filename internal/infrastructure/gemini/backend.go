package gemini

import (
	"context"

	"google.golang.org/genai"
)

// backend は、MediaClientが利用するGemini API呼び出しの最小集合です
type backend interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error)
}

// sdkBackend は、genai.Clientをbackendとして公開します
type sdkBackend struct {
	client *genai.Client
}

func (b *sdkBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return b.client.Models.GenerateContent(ctx, model, contents, cfg)
}

func (b *sdkBackend) GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	return b.client.Models.GenerateImages(ctx, model, prompt, cfg)
}

func (b *sdkBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (b *sdkBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, op, nil)
}

func (b *sdkBackend) DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error) {
	return b.client.Files.Download(ctx, video, nil)
}
