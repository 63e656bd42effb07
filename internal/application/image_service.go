package application

import (
	"context"
	"fmt"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// ImageOutput は、ストアに格納された画像とモデルのコメントです
type ImageOutput struct {
	Handle string
	Text   string
}

// ImageService は、画像の編集・生成とプロンプト改善を担当するサービスです
type ImageService struct {
	generator MediaGenerator
	assets    AssetStore
	config    *config.StudioConfig
	logger    *zap.Logger
}

// NewImageService は新しいImageServiceインスタンスを作成します
func NewImageService(generator MediaGenerator, assets AssetStore, studioConfig *config.StudioConfig, log *zap.Logger) *ImageService {
	if studioConfig == nil {
		studioConfig = config.DefaultStudioConfig()
	}
	return &ImageService{
		generator: generator,
		assets:    assets,
		config:    studioConfig,
		logger:    logger.OrNop(log).Named("image_service"),
	}
}

// EditImage は、画像集合をプロンプトに従って編集し、結果をビューのスロットに格納します
func (s *ImageService) EditImage(ctx context.Context, view string, req domain.ImageEditRequest) (*ImageOutput, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Images.IsEmpty() {
		return nil, fmt.Errorf("%w: 編集する画像がありません", domain.ErrInvalidPrompt)
	}

	s.logger.Info("画像編集を開始", zap.Int("images", req.Images.Len()), zap.Int("prompt_length", len(req.Prompt)))

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	result, err := s.generator.EditImage(ctx, req.Images, req.Prompt)
	if err != nil {
		return nil, err
	}
	if result.Image == nil {
		return nil, domain.NewGenerationError(domain.KindEmptyOutput, "EditImage", "編集された画像が返されませんでした", domain.ErrEmptyOutput)
	}

	asset, err := encodedToAsset(result.Image.Data, result.Image.MimeType, result.Image.Name)
	if err != nil {
		return nil, err
	}
	handle := s.assets.Replace(viewKey(view, "image"), asset)

	s.logger.Info("画像編集が完了", zap.String("handle", handle), zap.Bool("has_text", result.HasText()))
	return &ImageOutput{Handle: handle, Text: result.Text}, nil
}

// GenerateImage は、テキストから画像を1枚生成し、ビューのスロットに格納します
func (s *ImageService) GenerateImage(ctx context.Context, view string, req domain.ImageCreateRequest) (*ImageOutput, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("画像生成を開始", zap.String("aspect_ratio", req.AspectRatio))

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	result, err := s.generator.GenerateImages(ctx, req.Prompt, req.AspectRatio)
	if err != nil {
		return nil, err
	}

	asset, err := encodedToAsset(result.Data, result.MimeType, "generated_image")
	if err != nil {
		return nil, err
	}
	handle := s.assets.Replace(viewKey(view, "image"), asset)

	s.logger.Info("画像生成が完了", zap.String("handle", handle), zap.Int("bytes", len(asset.Data)))
	return &ImageOutput{Handle: handle}, nil
}

// EnhancePrompt は、現在のプロンプトを改善します。空の場合は新しく作成します。
func (s *ImageService) EnhancePrompt(ctx context.Context, req domain.PromptEnhanceRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if req.Music {
		return s.generator.EnhanceMusicPrompt(ctx, req.CurrentPrompt)
	}
	return s.generator.EnhancePrompt(ctx, req.CurrentPrompt)
}

// Discard は、ビューに表示中の画像を破棄します
func (s *ImageService) Discard(view string) {
	s.assets.ClearView(viewKey(view, "image"))
}

func encodedToAsset(data, mimeType, name string) (domain.Asset, error) {
	raw, err := codec.DecodeBase64ToBytes(data)
	if err != nil {
		return domain.Asset{}, domain.NewGenerationError(domain.KindEmptyOutput, "StoreAsset", "生成されたデータを読み取れませんでした", err)
	}
	return domain.Asset{Data: raw, MimeType: mimeType, Name: name, CreatedAt: time.Now()}, nil
}

// viewKey は、ビューごと・種類ごとのスロット名を作ります
func viewKey(view, kind string) string {
	return view + ":" + kind
}
