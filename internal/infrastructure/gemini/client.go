package gemini

import (
	"context"
	"fmt"
	"strings"

	"mediastudio/internal/application"
	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// MediaClient は、Gemini APIを使って画像・動画・テキストを生成するクライアントです
type MediaClient struct {
	backend backend
	config  *config.GeminiConfig
	logger  *zap.Logger
}

var _ application.MediaGenerator = (*MediaClient)(nil)

// NewMediaClient は新しいMediaClientインスタンスを作成します
func NewMediaClient(apiKey string, geminiConfig *config.GeminiConfig, log *zap.Logger) (*MediaClient, error) {
	if geminiConfig == nil {
		geminiConfig = config.DefaultGeminiConfig()
	}

	ctx := context.Background()
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini APIクライアントの作成に失敗: %w", err)
	}

	return newMediaClient(&sdkBackend{client: client}, geminiConfig, log), nil
}

func newMediaClient(b backend, geminiConfig *config.GeminiConfig, log *zap.Logger) *MediaClient {
	if geminiConfig == nil {
		geminiConfig = config.DefaultGeminiConfig()
	}
	return &MediaClient{
		backend: b,
		config:  geminiConfig,
		logger:  logger.OrNop(log).Named("gemini"),
	}
}

// createSafetySettings は、安全フィルターの設定を作成します（中程度の制限）
func (c *MediaClient) createSafetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
	}
}

// createGenerateConfig は、テキスト生成用の設定を作成します
func (c *MediaClient) createGenerateConfig() *genai.GenerateContentConfig {
	temperature := c.config.Temperature
	topP := c.config.TopP
	return &genai.GenerateContentConfig{
		Temperature:    &temperature,
		TopP:           &topP,
		SafetySettings: c.createSafetySettings(),
	}
}

// firstCandidate は、レスポンスの先頭候補を取り出し、ブロックされた応答を検出します
func (c *MediaClient) firstCandidate(resp *genai.GenerateContentResponse) (*genai.Candidate, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini APIから有効な応答が得られませんでした: %w", domain.ErrEmptyOutput)
	}

	candidate := resp.Candidates[0]
	c.logger.Debug("Gemini APIレスポンス",
		zap.Int("candidates", len(resp.Candidates)),
		zap.String("finish_reason", string(candidate.FinishReason)))

	for i, rating := range candidate.SafetyRatings {
		if rating == nil {
			continue
		}
		c.logger.Debug("SafetyRating",
			zap.Int("index", i),
			zap.String("category", string(rating.Category)),
			zap.String("probability", string(rating.Probability)))
	}

	// FinishReasonをチェックして安全フィルターによるブロックを検出
	if candidate.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("安全フィルターによって応答がブロックされました: %w", domain.ErrEmptyOutput)
	}
	if candidate.FinishReason == "RECITATION" {
		return nil, fmt.Errorf("著作権保護された内容を検出しました: %w", domain.ErrEmptyOutput)
	}

	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("応答にコンテンツが含まれていません: %w", domain.ErrEmptyOutput)
	}
	return candidate, nil
}

// extractText は、候補のテキスト部分を連結して返します
func extractText(candidate *genai.Candidate) string {
	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}

// framesToParts は、base64 JPEGフレーム列をインラインデータのパートに変換します
func framesToParts(frames []string) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(frames))
	for i, frame := range frames {
		data, err := codec.DecodeBase64ToBytes(frame)
		if err != nil {
			return nil, fmt.Errorf("フレーム%dのデコードに失敗: %w", i, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, "image/jpeg"))
	}
	return parts, nil
}
