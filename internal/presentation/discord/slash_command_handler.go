package discord

import (
	"context"
	"fmt"
	"strings"

	"mediastudio/internal/application"
	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/attachments"
	"mediastudio/internal/infrastructure/codec"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	minBPM         = float64(60)
	maxBPM         = float64(200)
	minTemperature = float64(0)
	maxTemperature = float64(3)
	minMusicLength = float64(1)
	maxMusicLength = float64(300)
	minVideoLength = float64(5)
	maxVideoLength = float64(8)
)

// SlashCommandHandler は、Discordのスラッシュコマンドを処理するハンドラーです
type SlashCommandHandler struct {
	session         *discordgo.Session
	services        Services
	downloader      *attachments.Downloader
	responseHandler *ResponseHandler
	logger          *zap.Logger
}

// NewSlashCommandHandler は新しいSlashCommandHandlerインスタンスを作成します
func NewSlashCommandHandler(
	session *discordgo.Session,
	services Services,
	downloader *attachments.Downloader,
	responseHandler *ResponseHandler,
	log *zap.Logger,
) *SlashCommandHandler {
	return &SlashCommandHandler{
		session:         session,
		services:        services,
		downloader:      downloader,
		responseHandler: responseHandler,
		logger:          log,
	}
}

// commandDefinitions は、登録するスラッシュコマンドの定義を返します
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "image-generate",
			Description: "テキストから画像を生成します",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "生成する画像の説明", Required: true},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "aspect-ratio",
					Description: "アスペクト比",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "1:1", Value: "1:1"},
						{Name: "3:4", Value: "3:4"},
						{Name: "4:3", Value: "4:3"},
						{Name: "9:16", Value: "9:16"},
						{Name: "16:9", Value: "16:9"},
					},
				},
			},
		},
		{
			Name:        "image-edit",
			Description: "添付した画像をプロンプトに従って編集します",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionAttachment, Name: "image", Description: "編集する画像", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "編集内容", Required: true},
				{Type: discordgo.ApplicationCommandOptionAttachment, Name: "reference", Description: "参考にする画像"},
			},
		},
		{
			Name:        "video-generate",
			Description: "テキストと任意の画像から動画を生成します",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "生成する動画の説明", Required: true},
				{Type: discordgo.ApplicationCommandOptionAttachment, Name: "seed-image", Description: "最初のフレームにする画像"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "duration", Description: "動画の長さ（秒）", MinValue: &minVideoLength, MaxValue: maxVideoLength},
				{Type: discordgo.ApplicationCommandOptionString, Name: "model", Description: "使用する動画モデル"},
			},
		},
		{
			Name:        "prompt-enhance",
			Description: "プロンプトを改善します。空の場合は新しく考えます",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "現在のプロンプト"},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "kind",
					Description: "プロンプトの種類",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "画像・動画", Value: "image"},
						{Name: "音楽", Value: "music"},
					},
				},
			},
		},
		{
			Name:        "music-generate",
			Description: "プロンプトから音楽をストリーミング生成します",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "音楽の説明", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "bpm", Description: "テンポ", MinValue: &minBPM, MaxValue: maxBPM},
				{Type: discordgo.ApplicationCommandOptionNumber, Name: "temperature", Description: "ランダム性", MinValue: &minTemperature, MaxValue: maxTemperature},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "duration", Description: "長さ（秒）", MinValue: &minMusicLength, MaxValue: maxMusicLength},
			},
		},
		{
			Name:        "music-stop",
			Description: "生成中の音楽を停止し、そこまでの音声を送信します",
		},
		{
			Name:        "video-sound",
			Description: "動画を解析して、合う音楽やセリフを提案します",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionAttachment, Name: "video", Description: "解析する動画", Required: true},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "実行内容",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "シーン解析", Value: "analyze"},
						{Name: "解析して音楽を生成", Value: "score"},
						{Name: "セリフの提案", Value: "dialogue"},
					},
				},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "duration", Description: "音楽の長さ（秒）", MinValue: &minMusicLength, MaxValue: maxMusicLength},
			},
		},
	}
}

// SetupSlashCommands は、スラッシュコマンドを登録します
func (h *SlashCommandHandler) SetupSlashCommands(appID string) error {
	for _, command := range commandDefinitions() {
		if _, err := h.session.ApplicationCommandCreate(appID, "", command); err != nil {
			h.logger.Error("スラッシュコマンドの登録に失敗", zap.String("command", command.Name), zap.Error(err))
			return fmt.Errorf("スラッシュコマンド %s の登録に失敗: %w", command.Name, err)
		}
		h.logger.Info("スラッシュコマンドを登録しました", zap.String("command", command.Name))
	}
	return nil
}

// SetupSlashCommandHandlers は、スラッシュコマンドのハンドラーを設定します
func (h *SlashCommandHandler) SetupSlashCommandHandlers() {
	h.session.AddHandler(h.handleInteractionCreate)
}

// handleInteractionCreate は、インタラクション作成イベントを処理します
func (h *SlashCommandHandler) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	h.logger.Info("スラッシュコマンドを受信", zap.String("command", name), zap.String("user", interactionUserID(i)))

	switch name {
	case "image-generate":
		h.runDeferred(s, i, h.handleImageGenerate)
	case "image-edit":
		h.runDeferred(s, i, h.handleImageEdit)
	case "video-generate":
		h.runDeferred(s, i, h.handleVideoGenerate)
	case "prompt-enhance":
		h.runDeferred(s, i, h.handlePromptEnhance)
	case "music-generate":
		h.runDeferred(s, i, h.handleMusicGenerate)
	case "music-stop":
		h.handleMusicStop(s, i)
	case "video-sound":
		h.runDeferred(s, i, h.handleVideoSound)
	default:
		h.logger.Warn("未知のスラッシュコマンド", zap.String("command", name))
	}
}

// runDeferred は、応答を保留してから処理を非同期で実行します
func (h *SlashCommandHandler) runDeferred(s *discordgo.Session, i *discordgo.InteractionCreate, fn func(context.Context, *discordgo.Session, *discordgo.InteractionCreate)) {
	if err := h.responseHandler.deferInteraction(s, i, false); err != nil {
		return
	}
	go fn(context.Background(), s, i)
}

func (h *SlashCommandHandler) handleImageGenerate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	req := domain.ImageCreateRequest{
		Prompt:      stringOption(opts, "prompt"),
		AspectRatio: stringOption(opts, "aspect-ratio"),
	}

	view := viewID(i)
	out, err := h.services.Image.GenerateImage(ctx, view, req)
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	defer h.services.Image.Discard(view)

	file, err := openAssetFile(h.services.Assets, out.Handle, "generated_image")
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	content := fmt.Sprintf("🎨 **画像生成完了！**\n**プロンプト:** %s", req.Prompt)
	h.responseHandler.editResponse(s, i, content, file)
}

func (h *SlashCommandHandler) handleImageEdit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	var images []domain.EncodedImage
	for _, name := range []string{"image", "reference"} {
		attachment := attachmentOption(data, opts, name)
		if attachment == nil {
			continue
		}
		image, err := h.downloadImage(ctx, attachment)
		if err != nil {
			h.responseHandler.editError(s, i, err)
			return
		}
		images = append(images, image)
	}

	req := domain.ImageEditRequest{
		Images: domain.NewImageSet(images...),
		Prompt: stringOption(opts, "prompt"),
	}
	view := viewID(i)
	out, err := h.services.Image.EditImage(ctx, view, req)
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	defer h.services.Image.Discard(view)

	file, err := openAssetFile(h.services.Assets, out.Handle, "edited_image")
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	content := fmt.Sprintf("🖌️ **画像編集完了！**\n**プロンプト:** %s", req.Prompt)
	if out.Text != "" {
		content += "\n\n" + out.Text
	}
	h.responseHandler.editResponse(s, i, content, file)
}

func (h *SlashCommandHandler) handleVideoGenerate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	req := domain.VideoRequest{
		Prompt: stringOption(opts, "prompt"),
		Model:  stringOption(opts, "model"),
	}
	if v, ok := opts["duration"]; ok {
		seconds := int32(v.IntValue())
		req.DurationSeconds = &seconds
	}
	if attachment := attachmentOption(data, opts, "seed-image"); attachment != nil {
		image, err := h.downloadImage(ctx, attachment)
		if err != nil {
			h.responseHandler.editError(s, i, err)
			return
		}
		req.SeedImage = &image
	}

	h.responseHandler.editProgress(s, i, "🎬 動画を生成中です。数分かかることがあります...")

	view := viewID(i)
	out, err := h.services.Video.GenerateVideo(ctx, view, req)
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	defer h.services.Video.Discard(view)

	file, err := openAssetFile(h.services.Assets, out.Handle, "generated_video")
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	content := fmt.Sprintf("🎬 **動画生成完了！**\n**プロンプト:** %s", req.Prompt)
	h.responseHandler.editResponse(s, i, content, file)
}

func (h *SlashCommandHandler) handlePromptEnhance(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	req := domain.PromptEnhanceRequest{
		CurrentPrompt: stringOption(opts, "prompt"),
		Music:         stringOption(opts, "kind") == "music",
	}

	enhanced, err := h.services.Image.EnhancePrompt(ctx, req)
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}

	title := "✨ **改善したプロンプト**"
	if req.CurrentPrompt == "" {
		title = "✨ **新しいプロンプト**"
	}
	h.responseHandler.editResponse(s, i, fmt.Sprintf("%s\n```\n%s\n```", title, enhanced))
}

func (h *SlashCommandHandler) handleMusicGenerate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	req := h.services.Music.NewRequest(
		stringOption(opts, "prompt"),
		int(intOption(opts, "bpm")),
		floatOption(opts, "temperature"),
		int(intOption(opts, "duration")),
	)

	h.responseHandler.editProgress(s, i, fmt.Sprintf("🎵 音楽を生成中です（%d秒, BPM %d）。`/music-stop` で途中停止できます...", req.DurationSeconds, req.BPM))

	view := viewID(i)
	out, err := h.services.Music.Generate(ctx, view, req)
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	h.sendMusic(s, i, view, req.Prompt, out)
}

func (h *SlashCommandHandler) handleMusicStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.services.Music.Stop(); err != nil {
		h.responseHandler.respondToInteraction(s, i, h.responseHandler.formatError(err), true)
		return
	}
	h.responseHandler.respondToInteraction(s, i, "⏹️ 音楽の生成を停止しました。まもなく音声が送信されます。", true)
}

func (h *SlashCommandHandler) handleVideoSound(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	attachment := attachmentOption(data, opts, "video")
	if attachment == nil {
		h.responseHandler.editResponse(s, i, "❌ 動画が添付されていません。")
		return
	}
	if !strings.HasPrefix(attachment.ContentType, "video/") {
		h.responseHandler.editResponse(s, i, "❌ 動画ファイルを添付してください。")
		return
	}

	path, err := h.downloader.FetchToFile(ctx, attachment.URL, attachment.Filename, int64(attachment.Size))
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	defer attachments.Remove(path)

	progress := newProgressReporter(func(percent int) {
		h.responseHandler.editProgress(s, i, fmt.Sprintf("🎞️ フレームを抽出中... %d%%", percent))
	})

	switch stringOption(opts, "mode") {
	case "dialogue":
		line, err := h.services.Sound.SuggestDialogue(ctx, path, progress)
		if err != nil {
			h.responseHandler.editError(s, i, err)
			return
		}
		h.responseHandler.editResponse(s, i, fmt.Sprintf("💬 **セリフの提案**\n> %s", line))
	case "score":
		view := viewID(i)
		out, err := h.services.Sound.ScoreVideo(ctx, view, path, int(intOption(opts, "duration")), progress)
		if err != nil {
			h.responseHandler.editError(s, i, err)
			return
		}
		h.sendMusic(s, i, view, analysisText(out), out.Music)
	default:
		out, err := h.services.Sound.AnalyzeVideo(ctx, path, progress)
		if err != nil {
			h.responseHandler.editError(s, i, err)
			return
		}
		h.responseHandler.editResponse(s, i, analysisText(out))
	}
}

// sendMusic は、生成したWAVとプレビューGIFを送信し、送信後にビューの生成物を解放します
func (h *SlashCommandHandler) sendMusic(s *discordgo.Session, i *discordgo.InteractionCreate, view, description string, out *application.MusicOutput) {
	defer h.services.Music.Discard(view)

	music, err := openAssetFile(h.services.Assets, out.Handle, "generated_music")
	if err != nil {
		h.responseHandler.editError(s, i, err)
		return
	}
	files := []*discordgo.File{music}
	if out.PreviewHandle != "" {
		preview, err := openAssetFile(h.services.Assets, out.PreviewHandle, "visualizer")
		if err != nil {
			h.logger.Warn("プレビューGIFを添付できません", zap.Error(err))
		} else {
			files = append(files, preview)
		}
	}
	content := fmt.Sprintf("🎵 **音楽生成完了！** (%.1f秒)\n%s", out.Duration.Seconds(), description)
	h.responseHandler.editResponse(s, i, content, files...)
}

// downloadImage は、添付画像をダウンロードしてEncodedImageに変換します
func (h *SlashCommandHandler) downloadImage(ctx context.Context, attachment *discordgo.MessageAttachment) (domain.EncodedImage, error) {
	return downloadEncodedImage(ctx, h.downloader, attachment)
}

func downloadEncodedImage(ctx context.Context, downloader *attachments.Downloader, attachment *discordgo.MessageAttachment) (domain.EncodedImage, error) {
	file, err := downloader.Fetch(ctx, attachment.URL, int64(attachment.Size))
	if err != nil {
		return domain.EncodedImage{}, err
	}

	mimeType := attachment.ContentType
	if mimeType == "" {
		mimeType = file.ContentType
	}
	image, err := domain.NewEncodedImage(codec.EncodeBytesToBase64(file.Data), mimeType, attachment.Filename)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("%w: %v", domain.ErrInvalidPrompt, err)
	}
	return image, nil
}

// analysisText は、動画解析の結果を表示用に整形します
func analysisText(out *application.SoundOutput) string {
	return fmt.Sprintf("🎞️ **動画解析結果** (%dフレーム)\n**シーン:** %s\n**音楽プロンプト:** %s",
		out.FrameCount, out.Analysis.SceneDescription, out.Analysis.MusicPrompt)
}

// optionMap は、オプションを名前で引けるようにします
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func intOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	if opt, ok := opts[name]; ok {
		return opt.IntValue()
	}
	return 0
}

func floatOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) *float64 {
	if opt, ok := opts[name]; ok {
		v := opt.FloatValue()
		return &v
	}
	return nil
}

// attachmentOption は、添付ファイル型のオプションを解決します
func attachmentOption(data discordgo.ApplicationCommandInteractionData, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.MessageAttachment {
	opt, ok := opts[name]
	if !ok || data.Resolved == nil {
		return nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return nil
	}
	return data.Resolved.Attachments[id]
}

// interactionUserID は、サーバー内・DMのどちらでも実行ユーザーのIDを返します
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// viewID は、生成物のスロットをチャンネルとユーザーの組で分けます
func viewID(i *discordgo.InteractionCreate) string {
	return i.ChannelID + "/" + interactionUserID(i)
}

// newProgressReporter は、進捗を25%刻みで通知する関数を返します
func newProgressReporter(notify func(percent int)) func(float64) {
	last := -1
	return func(fraction float64) {
		percent := int(fraction*4) * 25
		if percent > 100 {
			percent = 100
		}
		if percent == last {
			return
		}
		last = percent
		notify(percent)
	}
}
