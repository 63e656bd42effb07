package main

import (
	"fmt"
	"net/url"
	"os"

	"mediastudio/internal/infrastructure/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// 招待URLに含める権限
var requiredPermissions = []struct {
	name  string
	value int64
}{
	{"View Channels", discordgo.PermissionViewChannel},
	{"Send Messages", discordgo.PermissionSendMessages},
	{"Attach Files", discordgo.PermissionAttachFiles},
	{"Read Message History", discordgo.PermissionReadMessageHistory},
}

func main() {
	log, err := logger.NewZapLogger(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの初期化に失敗: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Warn(".envファイルの読み込みに失敗しました", zap.Error(err))
	}

	botToken := os.Getenv("DISCORD_BOT_TOKEN")
	if botToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN が設定されていません")
	}

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		log.Fatal("Discordセッションの作成に失敗", zap.Error(err))
	}
	defer session.Close()

	user, err := session.User("@me")
	if err != nil {
		log.Fatal("Bot情報の取得に失敗", zap.Error(err))
	}

	var total int64
	for _, p := range requiredPermissions {
		total |= p.value
	}

	fmt.Printf("🤖 Bot情報:\n")
	fmt.Printf("   名前: %s\n", user.Username)
	fmt.Printf("   Client ID: %s\n", user.ID)
	fmt.Println()

	fmt.Printf("🔗 Bot招待URL:\n")
	fmt.Printf("   %s\n", inviteURL(user.ID, total))
	fmt.Println()

	fmt.Printf("📋 必要な権限:\n")
	for _, p := range requiredPermissions {
		fmt.Printf("   - %s (%d)\n", p.name, p.value)
	}
	fmt.Printf("   - 合計: %d\n", total)
	fmt.Println()

	fmt.Printf("🎯 Botの使い方:\n")
	fmt.Printf("   1. @%s に画像を添付してメンションすると画像を編集します\n", user.Username)
	fmt.Printf("   2. /image-generate, /image-edit で画像を生成・編集します\n")
	fmt.Printf("   3. /video-generate で動画を生成します\n")
	fmt.Printf("   4. /music-generate で音楽を生成し、/music-stop で停止します\n")
	fmt.Printf("   5. /video-sound で動画の効果音・BGM・セリフを提案します\n")
}

func inviteURL(clientID string, permissions int64) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("permissions", fmt.Sprintf("%d", permissions))
	q.Set("scope", "bot applications.commands")
	return "https://discord.com/api/oauth2/authorize?" + q.Encode()
}
