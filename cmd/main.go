package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediastudio/configs"
	"mediastudio/internal/application"
	"mediastudio/internal/infrastructure/assets"
	"mediastudio/internal/infrastructure/attachments"
	"mediastudio/internal/infrastructure/frames"
	"mediastudio/internal/infrastructure/gemini"
	"mediastudio/internal/infrastructure/logger"
	"mediastudio/internal/infrastructure/lyria"
	"mediastudio/internal/infrastructure/visualizer"
	discordPres "mediastudio/internal/presentation/discord"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func main() {
	// 設定を読み込み
	config, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(&config.Log)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("メディアスタジオBotを起動中...")

	// Discordセッションを作成
	session, err := discordgo.New("Bot " + config.Discord.BotToken)
	if err != nil {
		zapLogger.Fatal("Discordセッションの作成に失敗", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	// Botの情報を取得
	user, err := session.User("@me")
	if err != nil {
		zapLogger.Fatal("Bot情報の取得に失敗", zap.Error(err))
	}
	zapLogger.Info("Bot情報", zap.String("username", user.Username), zap.String("id", user.ID))

	// 外部APIクライアントを作成
	mediaClient, err := gemini.NewMediaClient(config.Gemini.APIKey, &config.Gemini, zapLogger)
	if err != nil {
		zapLogger.Fatal("Gemini APIクライアントの作成に失敗", zap.Error(err))
	}
	musicClient := lyria.NewClient(config.Gemini.APIKey, &config.Music, zapLogger)

	// ローカル処理の部品を作成
	store := assets.NewStore(config.Studio.AssetTTL, zapLogger)
	sampler := frames.NewSampler(frames.DefaultOptions(), zapLogger)
	extractor := frames.NewFileExtractor(sampler, config.Studio.FFmpegPath, config.Studio.FFprobePath)
	downloader := attachments.NewDownloader(config.Studio.RequestTimeout, zapLogger)

	var preview application.PreviewRenderer
	if config.Studio.VisualizerGIF {
		viz := visualizer.NewVisualizer(visualizer.DefaultOptions(), zapLogger)
		preview = visualizer.NewGIFRenderer(viz, visualizer.DefaultGIFOptions())
	}

	// アプリケーションサービスを作成
	sessions := application.NewMusicSessionManager(musicClient, zapLogger)
	musicService := application.NewMusicService(sessions, mediaClient, store, preview, &config.Music, &config.Studio, zapLogger)
	services := discordPres.Services{
		Assets: application.NewAssetService(store, zapLogger),
		Image:  application.NewImageService(mediaClient, store, &config.Studio, zapLogger),
		Video:  application.NewVideoService(mediaClient, store, &config.Studio, zapLogger),
		Sound:  application.NewSoundService(extractor, mediaClient, musicService, &config.Studio, zapLogger),
		Music:  musicService,
	}

	// Discordハンドラを作成
	handler := discordPres.NewDiscordHandler(session, services, downloader, user.ID, zapLogger)
	handler.SetupHandlers()

	// Discordに接続
	if err := session.Open(); err != nil {
		zapLogger.Fatal("Discordへの接続に失敗", zap.Error(err))
	}

	if err := handler.RegisterCommands(); err != nil {
		zapLogger.Fatal("スラッシュコマンドの設定に失敗", zap.Error(err))
	}

	zapLogger.Info("Discordに接続しました。Botが準備完了しました！")

	// シグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	zapLogger.Info("終了シグナルを受信しました。Botを停止中...")

	// クリーンアップ
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := musicService.Dispose(ctx); err != nil {
		zapLogger.Warn("音楽セッションの終了に失敗", zap.Error(err))
	}
	if err := session.Close(); err != nil {
		zapLogger.Warn("Discordセッションのクローズに失敗", zap.Error(err))
	}

	zapLogger.Info("Botが正常に停止しました。")
}
