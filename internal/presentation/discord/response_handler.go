package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"mediastudio/internal/application"
	"mediastudio/internal/domain"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordMessageLimit は、Discordのメッセージ文字数制限です
const DiscordMessageLimit = 2000

// ResponseHandler は、Discordのレスポンス送信・フォーマット処理を担当するハンドラーです
type ResponseHandler struct {
	logger *zap.Logger
}

// NewResponseHandler は新しいResponseHandlerインスタンスを作成します
func NewResponseHandler(log *zap.Logger) *ResponseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResponseHandler{logger: log}
}

// deferInteraction は、時間のかかる処理の前に「考え中」の応答を返します
func (h *ResponseHandler) deferInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) error {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{},
	}
	if ephemeral {
		response.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, response); err != nil {
		h.logger.Error("インタラクションへの応答に失敗", zap.Error(err))
		return err
	}
	return nil
}

// respondToInteraction は、インタラクションに即座に応答します
func (h *ResponseHandler) respondToInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
	if ephemeral {
		response.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, response); err != nil {
		h.logger.Error("インタラクションへの応答に失敗", zap.Error(err))
	}
}

// editResponse は、保留中の応答を本文と添付ファイルで更新します。
// 本文が長い場合は残りをフォローアップとして送信します。
func (h *ResponseHandler) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string, files ...*discordgo.File) {
	chunks := h.splitMessage(content)
	first := chunks[0]

	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &first,
		Files:   files,
	})
	if err != nil {
		h.logger.Error("応答の更新に失敗", zap.Error(err), zap.Int("files", len(files)))
		return
	}

	for n, chunk := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: chunk}); err != nil {
			h.logger.Error("フォローアップの送信に失敗", zap.Error(err), zap.Int("chunk", n+2))
			break
		}
	}
}

// editProgress は、保留中の応答の本文だけを更新します
func (h *ResponseHandler) editProgress(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		h.logger.Debug("進捗の更新に失敗", zap.Error(err))
	}
}

// editError は、保留中の応答をエラーメッセージで更新します
func (h *ResponseHandler) editError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	h.logError(err)
	h.editResponse(s, i, h.formatError(err))
}

// sendReply は、メッセージへのリプライとして本文と添付ファイルを送信します
func (h *ResponseHandler) sendReply(s *discordgo.Session, m *discordgo.MessageCreate, content string, files ...*discordgo.File) {
	reference := &discordgo.MessageReference{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
	}

	chunks := h.splitMessage(content)
	for n, chunk := range chunks {
		msg := &discordgo.MessageSend{Content: chunk, Reference: reference}
		if n == len(chunks)-1 {
			msg.Files = files
		}
		if _, err := s.ChannelMessageSendComplex(m.ChannelID, msg); err != nil {
			h.logger.Error("応答メッセージの送信に失敗", zap.Error(err), zap.Int("chunk", n+1))
			return
		}
	}
}

// openAssetFile は、ハンドルのアセットを取り出してDiscordの添付ファイルに変換します
func openAssetFile(assets *application.AssetService, handle, fallback string) (*discordgo.File, error) {
	asset, err := assets.Open(handle)
	if err != nil {
		return nil, err
	}
	return assetFile(asset, fallback), nil
}

// assetFile は、アセットをDiscordの添付ファイルに変換します
func assetFile(asset domain.Asset, fallback string) *discordgo.File {
	return &discordgo.File{
		Name:        fileName(asset, fallback),
		ContentType: asset.MimeType,
		Reader:      bytes.NewReader(asset.Data),
	}
}

// fileName は、アセット名またはMIMEタイプからファイル名を決めます
func fileName(asset domain.Asset, fallback string) string {
	name := asset.Name
	if name == "" {
		name = fallback
	}
	if strings.Contains(name, ".") {
		return name
	}

	switch asset.MimeType {
	case "image/png":
		return name + ".png"
	case "image/jpeg":
		return name + ".jpg"
	case "image/gif":
		return name + ".gif"
	case "image/webp":
		return name + ".webp"
	case "video/mp4":
		return name + ".mp4"
	case "audio/wav":
		return name + ".wav"
	default:
		return name
	}
}

// splitMessage は、長いメッセージをDiscordの制限に合わせて分割します
func (h *ResponseHandler) splitMessage(message string) []string {
	if len(message) <= DiscordMessageLimit {
		return []string{message}
	}

	var chunks []string
	remaining := message

	for len(remaining) > 0 {
		if len(remaining) <= DiscordMessageLimit {
			chunks = append(chunks, remaining)
			break
		}

		// 制限内で最も近い改行位置、なければ空白で分割する
		splitIndex := strings.LastIndex(remaining[:DiscordMessageLimit], "\n")
		if splitIndex <= 0 {
			splitIndex = strings.LastIndex(remaining[:DiscordMessageLimit], " ")
		}
		if splitIndex <= 0 {
			splitIndex = runeBoundary(remaining, DiscordMessageLimit)
		}

		chunks = append(chunks, remaining[:splitIndex])
		remaining = strings.TrimLeft(remaining[splitIndex:], " \n")
	}

	return chunks
}

// runeBoundary は、limit以下で最も近いUTF-8の文字境界を返します
func runeBoundary(s string, limit int) int {
	for limit > 0 && limit < len(s) && !isRuneStart(s[limit]) {
		limit--
	}
	return limit
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// isTimeoutError は、エラーがタイムアウトエラーかどうかを判定します
func (h *ResponseHandler) isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errorMsg := strings.ToLower(err.Error())
	timeoutKeywords := []string{
		"timeout",
		"タイムアウト",
		"deadline exceeded",
		"context deadline",
	}
	for _, keyword := range timeoutKeywords {
		if strings.Contains(errorMsg, keyword) {
			return true
		}
	}
	return false
}

// formatError は、エラーを適切なメッセージにフォーマットします
func (h *ResponseHandler) formatError(err error) string {
	switch {
	case err == nil:
		return "❌ **不明なエラーが発生しました**"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "⚠️ **APIの利用上限に達しました**\nしばらく待ってから再度お試しください。"
	case h.isTimeoutError(err):
		return "⏰ **タイムアウトしました**\n\n処理に時間がかかりすぎました。以下の対処法をお試しください：\n\n" +
			"- プロンプトを短くしてみる\n" +
			"- 動画の場合は長さを短くしてみる\n" +
			"- しばらく待ってから再度お試しください"
	case errors.Is(err, domain.ErrInvalidPrompt):
		return fmt.Sprintf("📏 **入力内容を確認してください**\n%s", err.Error())
	case errors.Is(err, domain.ErrEmptyOutput):
		return fmt.Sprintf("🚫 **生成結果が得られませんでした**\n%s\n表現を変えて再度お試しください。", err.Error())
	case errors.Is(err, domain.ErrResourceUnavailable):
		return fmt.Sprintf("🎞️ **動画を読み込めませんでした**\n%s", err.Error())
	case errors.Is(err, domain.ErrInvalidSessionState):
		return "🎵 **実行中の音楽セッションがありません**"
	default:
		return fmt.Sprintf("❌ **エラーが発生しました**\n%s", err.Error())
	}
}

// logError は、診断用に元のエラーを含めてログに出力します
func (h *ResponseHandler) logError(err error) {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		h.logger.Warn("生成処理に失敗",
			zap.String("op", genErr.Op),
			zap.String("kind", genErr.Kind.String()),
			zap.NamedError("cause", genErr.Cause()))
		return
	}
	h.logger.Warn("処理に失敗", zap.Error(err))
}
