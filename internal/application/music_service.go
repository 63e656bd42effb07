package application

import (
	"context"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// MusicOutput は、ストアに格納された生成音楽とプレビューです
type MusicOutput struct {
	Handle        string
	Duration      time.Duration
	ChunkCount    int
	PreviewHandle string // プレビューを作成しなかった場合は空
}

// MusicService は、ストリーミング音楽生成を担当するサービスです
type MusicService struct {
	sessions  *MusicSessionManager
	generator MediaGenerator
	assets    AssetStore
	preview   PreviewRenderer
	config    *config.MusicConfig
	studio    *config.StudioConfig
	logger    *zap.Logger
}

// NewMusicService は新しいMusicServiceインスタンスを作成します。
// previewがnilの場合、プレビューGIFは作成しません。
func NewMusicService(
	sessions *MusicSessionManager,
	generator MediaGenerator,
	assets AssetStore,
	preview PreviewRenderer,
	musicConfig *config.MusicConfig,
	studioConfig *config.StudioConfig,
	log *zap.Logger,
) *MusicService {
	if musicConfig == nil {
		musicConfig = config.DefaultMusicConfig()
	}
	if studioConfig == nil {
		studioConfig = config.DefaultStudioConfig()
	}
	return &MusicService{
		sessions:  sessions,
		generator: generator,
		assets:    assets,
		preview:   preview,
		config:    musicConfig,
		studio:    studioConfig,
		logger:    logger.OrNop(log).Named("music_service"),
	}
}

// NewRequest は、未指定の値を設定のデフォルトで補ったMusicRequestを作成します
// temperatureがnilの場合のみデフォルトを使い、明示的な0はそのまま渡します。
func (s *MusicService) NewRequest(prompt string, bpm int, temperature *float64, durationSeconds int) domain.MusicRequest {
	if bpm == 0 {
		bpm = s.config.DefaultBPM
	}
	temp := s.config.DefaultTemperature
	if temperature != nil {
		temp = *temperature
	}
	if durationSeconds == 0 {
		durationSeconds = int(s.config.DefaultDuration / time.Second)
	}
	return domain.MusicRequest{
		Prompt:          prompt,
		BPM:             bpm,
		Temperature:     temp,
		DurationSeconds: durationSeconds,
	}
}

// EnhancePrompt は、音楽向けにプロンプトを改善します
func (s *MusicService) EnhancePrompt(ctx context.Context, current string) (string, error) {
	if err := validateRequest(domain.PromptEnhanceRequest{CurrentPrompt: current, Music: true}); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.studio.RequestTimeout)
	defer cancel()
	return s.generator.EnhanceMusicPrompt(ctx, current)
}

// Generate は、セッションを開始して自動停止または明示的な停止まで待ち、WAVを格納します
func (s *MusicService) Generate(ctx context.Context, view string, req domain.MusicRequest) (*MusicOutput, error) {
	session, err := s.sessions.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	wav, err := session.Wait(ctx)
	if err != nil {
		return nil, err
	}

	asset := domain.Asset{
		Data:      wav.Bytes(),
		MimeType:  "audio/wav",
		Name:      "generated_music.wav",
		CreatedAt: wav.CreatedAt,
	}
	output := &MusicOutput{
		Handle:     s.assets.Replace(viewKey(view, "music"), asset),
		Duration:   wav.Duration(),
		ChunkCount: wav.ChunkCount,
	}

	if s.preview != nil && s.studio.VisualizerGIF {
		s.attachPreview(ctx, view, asset.Data, output)
	}

	s.logger.Info("音楽生成が完了",
		zap.String("handle", output.Handle),
		zap.Duration("duration", output.Duration),
		zap.Int("chunks", output.ChunkCount))
	return output, nil
}

// attachPreview は、ビジュアライザーのプレビューGIFを作成します。失敗しても音楽の結果は返します。
func (s *MusicService) attachPreview(ctx context.Context, view string, wav []byte, output *MusicOutput) {
	gifData, err := s.preview.RenderPreview(ctx, wav)
	if err != nil {
		s.logger.Warn("プレビューGIFの作成に失敗しました", zap.Error(err))
		return
	}
	preview := domain.Asset{
		Data:      gifData,
		MimeType:  "image/gif",
		Name:      "visualizer.gif",
		CreatedAt: time.Now(),
	}
	output.PreviewHandle = s.assets.Replace(viewKey(view, "visualizer"), preview)
}

// Discard は、ビューに表示中の音楽とプレビューを破棄します
func (s *MusicService) Discard(view string) {
	s.assets.ClearView(viewKey(view, "music"))
	s.assets.ClearView(viewKey(view, "visualizer"))
}

// Stop は、実行中の音楽セッションを停止します
func (s *MusicService) Stop() error {
	return s.sessions.Stop()
}

// Dispose は、実行中の音楽セッションを破棄します
func (s *MusicService) Dispose(ctx context.Context) error {
	return s.sessions.Dispose(ctx)
}
