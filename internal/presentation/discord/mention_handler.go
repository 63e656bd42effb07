package discord

import (
	"context"
	"fmt"
	"strings"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/attachments"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MentionHandler は、Discordのメンション処理を担当するハンドラーです。
// 画像付きのメンションは画像編集、画像なしのメンションは画像生成として扱います。
type MentionHandler struct {
	session         *discordgo.Session
	services        Services
	downloader      *attachments.Downloader
	botID           string
	botUsername     string
	responseHandler *ResponseHandler
	logger          *zap.Logger
}

// NewMentionHandler は新しいMentionHandlerインスタンスを作成します
func NewMentionHandler(
	session *discordgo.Session,
	services Services,
	downloader *attachments.Downloader,
	botID string,
	responseHandler *ResponseHandler,
	log *zap.Logger,
) *MentionHandler {
	return &MentionHandler{
		session:         session,
		services:        services,
		downloader:      downloader,
		botID:           botID,
		responseHandler: responseHandler,
		logger:          log,
	}
}

// SetupHandlers は、メンション関連のイベントハンドラを設定します
func (h *MentionHandler) SetupHandlers() {
	h.session.AddHandler(h.handleMessageCreate)
	h.session.AddHandler(h.handleReady)
}

// handleReady は、Botが準備完了した際のイベントを処理します
func (h *MentionHandler) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	h.logger.Info("Botが準備完了しました", zap.String("username", event.User.Username))
	h.botUsername = event.User.Username
}

// handleMessageCreate は、メッセージ作成イベントを処理します
func (h *MentionHandler) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == h.botID || m.Author.Bot {
		return
	}
	if !h.isMentioned(m) {
		return
	}

	h.logger.Info("Botへのメンションを検出", zap.String("channel", m.ChannelID), zap.Int("attachments", len(m.Attachments)))
	go h.processMentionAsync(s, m)
}

// isMentioned は、メッセージがBotへのメンションかどうかを判定します
func (h *MentionHandler) isMentioned(m *discordgo.MessageCreate) bool {
	for _, mention := range m.Mentions {
		if mention.ID == h.botID {
			return true
		}
	}

	if len(m.Mentions) == 0 && h.botUsername != "" {
		content := strings.ToLower(m.Content)
		return strings.Contains(content, "@"+strings.ToLower(h.botUsername))
	}
	return false
}

// extractUserContent は、メンション部分を除去したユーザーのコンテンツを抽出します
func (h *MentionHandler) extractUserContent(m *discordgo.MessageCreate) string {
	content := m.Content
	for _, mention := range m.Mentions {
		content = strings.ReplaceAll(content, fmt.Sprintf("<@%s>", mention.ID), "")
		content = strings.ReplaceAll(content, fmt.Sprintf("<@!%s>", mention.ID), "")
	}
	if h.botUsername != "" && len(m.Mentions) == 0 {
		content = strings.ReplaceAll(content, "@"+h.botUsername, "")
	}
	return strings.TrimSpace(content)
}

// imageAttachments は、画像の添付ファイルだけを順番どおりに返します
func imageAttachments(m *discordgo.MessageCreate) []*discordgo.MessageAttachment {
	var images []*discordgo.MessageAttachment
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			images = append(images, a)
		}
	}
	return images
}

// processMentionAsync は、メンションを非同期で処理します
func (h *MentionHandler) processMentionAsync(s *discordgo.Session, m *discordgo.MessageCreate) {
	prompt := h.extractUserContent(m)
	if prompt == "" {
		h.responseHandler.sendReply(s, m, "💡 作りたい画像の説明を書いてメンションしてください。画像を添付すると編集します。")
		return
	}

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		h.logger.Debug("入力中表示の送信に失敗", zap.Error(err))
	}

	ctx := context.Background()
	view := m.ChannelID + "/" + m.Author.ID

	if images := imageAttachments(m); len(images) > 0 {
		h.editImage(ctx, s, m, view, prompt, images)
		return
	}

	out, err := h.services.Image.GenerateImage(ctx, view, domain.ImageCreateRequest{Prompt: prompt})
	if err != nil {
		h.replyError(s, m, err)
		return
	}
	h.replyAsset(s, m, view, "🎨 **画像生成完了！**", out.Handle, "generated_image")
}

// replyAsset は、生成物を添付して返信し、ビューの画像を解放します
func (h *MentionHandler) replyAsset(s *discordgo.Session, m *discordgo.MessageCreate, view, content, handle, fallback string) {
	defer h.services.Image.Discard(view)

	file, err := openAssetFile(h.services.Assets, handle, fallback)
	if err != nil {
		h.replyError(s, m, err)
		return
	}
	h.responseHandler.sendReply(s, m, content, file)
}

func (h *MentionHandler) replyError(s *discordgo.Session, m *discordgo.MessageCreate, err error) {
	h.responseHandler.logError(err)
	h.responseHandler.sendReply(s, m, h.responseHandler.formatError(err))
}

func (h *MentionHandler) editImage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, view, prompt string, images []*discordgo.MessageAttachment) {
	encoded := make([]domain.EncodedImage, 0, len(images))
	for _, attachment := range images {
		image, err := downloadEncodedImage(ctx, h.downloader, attachment)
		if err != nil {
			h.replyError(s, m, err)
			return
		}
		encoded = append(encoded, image)
	}

	out, err := h.services.Image.EditImage(ctx, view, domain.ImageEditRequest{
		Images: domain.NewImageSet(encoded...),
		Prompt: prompt,
	})
	if err != nil {
		h.replyError(s, m, err)
		return
	}

	content := "🖌️ **画像編集完了！**"
	if out.Text != "" {
		content += "\n" + out.Text
	}
	h.replyAsset(s, m, view, content, out.Handle, "edited_image")
}
