package gemini

import (
	"context"
	"errors"
	"net/http"

	"mediastudio/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// 操作ごとの利用者向け失敗メッセージ
var failureMessages = map[string]string{
	"EditImage":            "画像の編集に失敗しました",
	"GenerateImages":       "画像の生成に失敗しました",
	"GenerateVideo":        "動画の生成に失敗しました",
	"EnhancePrompt":        "プロンプトの改善に失敗しました",
	"EnhanceMusicPrompt":   "音楽プロンプトの改善に失敗しました",
	"AnalyzeVideoForSound": "動画の解析に失敗しました",
	"SuggestDialogue":      "セリフの提案に失敗しました",
}

const quotaMessage = "APIの利用上限に達しました。しばらく待ってから再試行してください"

// isQuotaError は、レート制限・リソース枯渇を示すエラーかどうかを判定します
func isQuotaError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}

	return domain.HasQuotaSignal(err.Error())
}

// normalizeError は、外部APIのエラーを操作境界のGenerationErrorに変換します。
// 元のエラーはログにのみ出力し、呼び出し元にはCause()経由でのみ渡します。
func (c *MediaClient) normalizeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	if errors.Is(err, domain.ErrEmptyOutput) {
		c.logger.Warn("モデルから有効な出力が得られませんでした", zap.String("op", op), zap.Error(err))
		return domain.NewGenerationError(domain.KindEmptyOutput, op, emptyMessage(op), err)
	}

	if isQuotaError(err) {
		c.logger.Warn("APIの利用上限に達しました", zap.String("op", op), zap.Error(err))
		return domain.NewGenerationError(domain.KindQuotaExceeded, op, quotaMessage, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn("リクエストがタイムアウトしました", zap.String("op", op), zap.Error(err))
	case errors.Is(err, context.Canceled):
		c.logger.Info("リクエストがキャンセルされました", zap.String("op", op))
	default:
		c.logger.Error("外部APIの呼び出しに失敗しました", zap.String("op", op), zap.Error(err))
	}
	return domain.NewGenerationError(domain.KindTransportFailure, op, failureMessage(op), err)
}

func failureMessage(op string) string {
	if msg, ok := failureMessages[op]; ok {
		return msg
	}
	return "外部APIの呼び出しに失敗しました"
}

func emptyMessage(op string) string {
	switch op {
	case "EditImage", "GenerateImages":
		return "画像が生成されませんでした"
	case "GenerateVideo":
		return "動画が生成されませんでした"
	case "AnalyzeVideoForSound":
		return "動画の解析結果が得られませんでした"
	default:
		return "モデルから有効な出力が得られませんでした"
	}
}
