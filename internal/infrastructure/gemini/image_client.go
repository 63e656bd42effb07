package gemini

import (
	"context"
	"fmt"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const imageOutputMIMEType = "image/jpeg"

// EditImage は、画像群とプロンプトを1つのユーザーコンテンツとして送り、編集後の画像を返します。
// 応答の最初のインライン画像と最初のテキストを採用します。
func (c *MediaClient) EditImage(ctx context.Context, images domain.ImageSet, prompt string) (*domain.EditResult, error) {
	const op = "EditImage"
	c.logger.Info("画像編集をリクエスト中",
		zap.Int("images", images.Len()),
		zap.Int("prompt_length", len(prompt)))

	parts := make([]*genai.Part, 0, images.Len()+1)
	for i, img := range images.Images() {
		data, err := codec.DecodeBase64ToBytes(img.Data)
		if err != nil {
			return nil, c.normalizeError(op, fmt.Errorf("画像%dのデコードに失敗: %w", i, err))
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MimeType, Data: data},
		})
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genConfig := c.createGenerateConfig()
	genConfig.ResponseModalities = []string{"IMAGE", "TEXT"}

	resp, err := c.backend.GenerateContent(ctx, c.config.ImageEditModel, contents, genConfig)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}

	candidate, err := c.firstCandidate(resp)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}

	result := &domain.EditResult{}
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if result.Image == nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			result.Image = &domain.EncodedImage{
				Data:     codec.EncodeBytesToBase64(part.InlineData.Data),
				MimeType: mimeType,
				Name:     "edited_image",
			}
		}
		if result.Text == "" && part.Text != "" {
			result.Text = part.Text
		}
	}

	if result.Image == nil {
		return nil, c.normalizeError(op, fmt.Errorf("no image produced: %w", domain.ErrEmptyOutput))
	}

	c.logger.Info("画像編集が完了しました", zap.Bool("has_text", result.HasText()))
	return result, nil
}

// GenerateImages は、プロンプトから画像を1枚生成します
func (c *MediaClient) GenerateImages(ctx context.Context, prompt, aspectRatio string) (*domain.ImageResult, error) {
	const op = "GenerateImages"
	c.logger.Info("画像生成をリクエスト中",
		zap.Int("prompt_length", len(prompt)),
		zap.String("aspect_ratio", aspectRatio))

	imageConfig := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
		OutputMIMEType: imageOutputMIMEType,
	}

	resp, err := c.backend.GenerateImages(ctx, c.config.ImageModel, prompt, imageConfig)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}

	if resp == nil {
		return nil, c.normalizeError(op, fmt.Errorf("no image produced: %w", domain.ErrEmptyOutput))
	}
	for _, generated := range resp.GeneratedImages {
		if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			if generated != nil && generated.RAIFilteredReason != "" {
				c.logger.Warn("画像がフィルタリングされました", zap.String("reason", generated.RAIFilteredReason))
			}
			continue
		}

		mimeType := generated.Image.MIMEType
		if mimeType == "" {
			mimeType = imageOutputMIMEType
		}
		c.logger.Info("画像生成が完了しました", zap.Int("bytes", len(generated.Image.ImageBytes)))
		return &domain.ImageResult{
			Data:     codec.EncodeBytesToBase64(generated.Image.ImageBytes),
			MimeType: mimeType,
		}, nil
	}

	return nil, c.normalizeError(op, fmt.Errorf("no image produced: %w", domain.ErrEmptyOutput))
}
