package application

import (
	"context"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// VideoOutput は、ストアに格納された生成動画です
type VideoOutput struct {
	Handle        string
	OperationName string
}

// VideoService は、動画生成を担当するサービスです
type VideoService struct {
	generator MediaGenerator
	assets    AssetStore
	config    *config.StudioConfig
	logger    *zap.Logger
}

// NewVideoService は新しいVideoServiceインスタンスを作成します
func NewVideoService(generator MediaGenerator, assets AssetStore, studioConfig *config.StudioConfig, log *zap.Logger) *VideoService {
	if studioConfig == nil {
		studioConfig = config.DefaultStudioConfig()
	}
	return &VideoService{
		generator: generator,
		assets:    assets,
		config:    studioConfig,
		logger:    logger.OrNop(log).Named("video_service"),
	}
}

// GenerateVideo は、動画を生成してビューのスロットに格納します。
// ポーリング全体にVideoTimeoutを適用します。
func (s *VideoService) GenerateVideo(ctx context.Context, view string, req domain.VideoRequest) (*VideoOutput, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("動画生成を開始",
		zap.String("model", req.Model),
		zap.Bool("seed_image", req.SeedImage != nil),
		zap.Duration("timeout", s.config.VideoTimeout))

	ctx, cancel := context.WithTimeout(ctx, s.config.VideoTimeout)
	defer cancel()

	video, err := s.generator.GenerateVideo(ctx, req)
	if err != nil {
		return nil, err
	}

	asset := domain.Asset{
		Data:      video.Data,
		MimeType:  video.MimeType,
		Name:      "generated_video.mp4",
		CreatedAt: time.Now(),
	}
	handle := s.assets.Replace(viewKey(view, "video"), asset)

	s.logger.Info("動画生成が完了",
		zap.String("handle", handle),
		zap.String("operation", video.OperationName),
		zap.Int("bytes", len(video.Data)))
	return &VideoOutput{Handle: handle, OperationName: video.OperationName}, nil
}

// Discard は、ビューに表示中の動画を破棄します
func (s *VideoService) Discard(view string) {
	s.assets.ClearView(viewKey(view, "video"))
}
