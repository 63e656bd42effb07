package gemini

import (
	"context"
	"fmt"

	"mediastudio/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// プロンプト改善用の固定テンプレート
const (
	rewriteImagePromptTemplate = `You are an expert prompt writer for image and video generation models.
Rewrite and elaborate the following prompt so that it is vivid and specific about subject, composition, lighting and style.
Reply with the improved prompt only.

Prompt: %s`

	inventImagePromptTemplate = `You are an expert prompt writer for image and video generation models.
Invent one original, visually striking prompt describing subject, composition, lighting and style.
Reply with the prompt only.`

	rewriteMusicPromptTemplate = `You are an expert prompt writer for music generation models.
Rewrite and elaborate the following music prompt so that it names the genre, instruments, tempo feel and mood.
Reply with the improved prompt only.

Prompt: %s`

	inventMusicPromptTemplate = `You are an expert prompt writer for music generation models.
Invent one original instrumental music prompt that names the genre, instruments, tempo feel and mood.
Reply with the prompt only.`
)

// EnhancePrompt は、画像・動画用のプロンプトを改善します。
// currentが空の場合は新しいプロンプトを生成します。
func (c *MediaClient) EnhancePrompt(ctx context.Context, current string) (string, error) {
	return c.enhance(ctx, "EnhancePrompt", current, rewriteImagePromptTemplate, inventImagePromptTemplate)
}

// EnhanceMusicPrompt は、音楽用のプロンプトを改善します。
// currentが空の場合は新しいプロンプトを生成します。
func (c *MediaClient) EnhanceMusicPrompt(ctx context.Context, current string) (string, error) {
	return c.enhance(ctx, "EnhanceMusicPrompt", current, rewriteMusicPromptTemplate, inventMusicPromptTemplate)
}

func (c *MediaClient) enhance(ctx context.Context, op, current, rewriteTemplate, inventTemplate string) (string, error) {
	instruction := inventTemplate
	if current != "" {
		instruction = fmt.Sprintf(rewriteTemplate, current)
	}

	c.logger.Info("プロンプト改善をリクエスト中",
		zap.String("op", op),
		zap.Bool("rewrite", current != ""))

	resp, err := c.backend.GenerateContent(ctx, c.config.TextModel, genai.Text(instruction), c.createGenerateConfig())
	if err != nil {
		return "", c.normalizeError(op, err)
	}

	candidate, err := c.firstCandidate(resp)
	if err != nil {
		return "", c.normalizeError(op, err)
	}

	text, err := domain.CleanModelText(extractText(candidate))
	if err != nil {
		return "", c.normalizeError(op, err)
	}
	return text, nil
}
