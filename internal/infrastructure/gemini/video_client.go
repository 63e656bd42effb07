package gemini

import (
	"context"
	"fmt"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenerateVideo は、動画生成オペレーションを開始し、完了までポーリングしてから動画をダウンロードします。
// ポーリング回数に上限はなく、打ち切りはctxのキャンセルで行います。
func (c *MediaClient) GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoAsset, error) {
	const op = "GenerateVideo"

	model := req.Model
	if model == "" {
		model = c.config.VideoModel
	}

	var seed *genai.Image
	if req.SeedImage != nil {
		data, err := codec.DecodeBase64ToBytes(req.SeedImage.Data)
		if err != nil {
			return nil, c.normalizeError(op, fmt.Errorf("シード画像のデコードに失敗: %w", err))
		}
		seed = &genai.Image{ImageBytes: data, MIMEType: req.SeedImage.MimeType}
	}

	videoConfig := &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		DurationSeconds: req.DurationSeconds,
	}

	c.logger.Info("動画生成をリクエスト中",
		zap.String("model", model),
		zap.Bool("seed_image", seed != nil),
		zap.Int("prompt_length", len(req.Prompt)))

	operation, err := c.backend.GenerateVideos(ctx, model, req.Prompt, seed, videoConfig)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}
	if operation == nil {
		return nil, c.normalizeError(op, fmt.Errorf("オペレーションが返されませんでした: %w", domain.ErrEmptyOutput))
	}

	interval := c.config.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	polls := 0
	for !operation.Done {
		select {
		case <-ctx.Done():
			return nil, c.normalizeError(op, fmt.Errorf("動画生成の待機が中断されました: %w", ctx.Err()))
		case <-time.After(interval):
		}

		polls++
		next, err := c.backend.GetVideosOperation(ctx, operation)
		if err != nil {
			return nil, c.normalizeError(op, err)
		}
		if next != nil {
			operation = next
		}
		c.logger.Debug("動画生成オペレーションを確認",
			zap.String("operation", operation.Name),
			zap.Int("polls", polls),
			zap.Bool("done", operation.Done))
	}

	if len(operation.Error) > 0 {
		return nil, c.normalizeError(op, fmt.Errorf("動画生成オペレーションが失敗しました %v: %w", operation.Error, domain.ErrEmptyOutput))
	}

	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 {
		return nil, c.normalizeError(op, fmt.Errorf("no video produced: %w", domain.ErrEmptyOutput))
	}
	generated := operation.Response.GeneratedVideos[0]
	if generated == nil || generated.Video == nil || (generated.Video.URI == "" && len(generated.Video.VideoBytes) == 0) {
		return nil, c.normalizeError(op, fmt.Errorf("ダウンロードURIがありません: %w", domain.ErrEmptyOutput))
	}

	data := generated.Video.VideoBytes
	if len(data) == 0 {
		data, err = c.backend.DownloadVideo(ctx, generated.Video)
		if err != nil {
			return nil, c.normalizeError(op, err)
		}
	}
	if len(data) == 0 {
		return nil, c.normalizeError(op, fmt.Errorf("動画データが空です: %w", domain.ErrEmptyOutput))
	}

	mimeType := generated.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	c.logger.Info("動画生成が完了しました",
		zap.String("operation", operation.Name),
		zap.Int("polls", polls),
		zap.Int("bytes", len(data)))

	return &domain.VideoAsset{
		Data:          data,
		MimeType:      mimeType,
		URI:           generated.Video.URI,
		OperationName: operation.Name,
	}, nil
}
