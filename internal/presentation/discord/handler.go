package discord

import (
	"mediastudio/internal/application"
	"mediastudio/internal/infrastructure/attachments"
	"mediastudio/internal/infrastructure/logger"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Services は、ハンドラから呼び出すアプリケーションサービスの集合です
type Services struct {
	Assets *application.AssetService
	Image  *application.ImageService
	Video  *application.VideoService
	Sound  *application.SoundService
	Music  *application.MusicService
}

// DiscordHandler は、Discordのイベントハンドラです
type DiscordHandler struct {
	session             *discordgo.Session
	botID               string
	mentionHandler      *MentionHandler
	slashCommandHandler *SlashCommandHandler
}

// NewDiscordHandler は新しいDiscordHandlerインスタンスを作成します
func NewDiscordHandler(
	session *discordgo.Session,
	services Services,
	downloader *attachments.Downloader,
	botID string,
	log *zap.Logger,
) *DiscordHandler {
	log = logger.OrNop(log).Named("discord")
	responseHandler := NewResponseHandler(log)

	return &DiscordHandler{
		session:             session,
		botID:               botID,
		mentionHandler:      NewMentionHandler(session, services, downloader, botID, responseHandler, log),
		slashCommandHandler: NewSlashCommandHandler(session, services, downloader, responseHandler, log),
	}
}

// SetupHandlers は、Discordのイベントハンドラを設定します
func (h *DiscordHandler) SetupHandlers() {
	h.mentionHandler.SetupHandlers()
	h.slashCommandHandler.SetupSlashCommandHandlers()
}

// RegisterCommands は、スラッシュコマンドをDiscordに登録します
func (h *DiscordHandler) RegisterCommands() error {
	return h.slashCommandHandler.SetupSlashCommands(h.botID)
}
