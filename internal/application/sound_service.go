package application

import (
	"context"
	"errors"
	"fmt"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// SoundOutput は、動画解析の結果と、必要に応じて生成した音楽です
type SoundOutput struct {
	FrameCount int
	Analysis   *domain.AnalysisResult
	Music      *MusicOutput
}

// SoundService は、動画に合わせた音楽・セリフの提案を担当するサービスです
type SoundService struct {
	extractor FrameExtractor
	generator MediaGenerator
	music     *MusicService
	config    *config.StudioConfig
	logger    *zap.Logger
}

// NewSoundService は新しいSoundServiceインスタンスを作成します
func NewSoundService(extractor FrameExtractor, generator MediaGenerator, music *MusicService, studioConfig *config.StudioConfig, log *zap.Logger) *SoundService {
	if studioConfig == nil {
		studioConfig = config.DefaultStudioConfig()
	}
	return &SoundService{
		extractor: extractor,
		generator: generator,
		music:     music,
		config:    studioConfig,
		logger:    logger.OrNop(log).Named("sound_service"),
	}
}

// AnalyzeVideo は、動画からフレームを抽出し、シーンの説明と音楽プロンプトを得ます
func (s *SoundService) AnalyzeVideo(ctx context.Context, path string, progress func(float64)) (*SoundOutput, error) {
	frames, err := s.extract(ctx, path, progress)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	analysis, err := s.generator.AnalyzeVideoForSound(ctx, frames)
	if err != nil {
		return nil, err
	}

	s.logger.Info("動画解析が完了", zap.Int("frames", len(frames)), zap.String("music_prompt", analysis.MusicPrompt))
	return &SoundOutput{FrameCount: len(frames), Analysis: analysis}, nil
}

// ScoreVideo は、動画を解析し、得られた音楽プロンプトで音楽を生成します
func (s *SoundService) ScoreVideo(ctx context.Context, view, path string, durationSeconds int, progress func(float64)) (*SoundOutput, error) {
	if s.music == nil {
		return nil, fmt.Errorf("音楽生成サービスが設定されていません")
	}

	output, err := s.AnalyzeVideo(ctx, path, progress)
	if err != nil {
		return nil, err
	}

	req := s.music.NewRequest(output.Analysis.MusicPrompt, 0, nil, durationSeconds)
	music, err := s.music.Generate(ctx, view, req)
	if err != nil {
		return nil, err
	}
	output.Music = music
	return output, nil
}

// SuggestDialogue は、動画のフレームから短いセリフを提案します
func (s *SoundService) SuggestDialogue(ctx context.Context, path string, progress func(float64)) (string, error) {
	frames, err := s.extract(ctx, path, progress)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	return s.generator.SuggestDialogue(ctx, frames)
}

// extract は、フレームを抽出して検証します。1枚も得られなければErrEmptyOutputです。
func (s *SoundService) extract(ctx context.Context, path string, progress func(float64)) ([]string, error) {
	frames, err := s.extractor.ExtractFrames(ctx, path, progress)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			return nil, err
		}
		return nil, domain.NewGenerationError(domain.KindOf(err), "ExtractFrames", "動画からフレームを取得できませんでした", err)
	}
	if len(frames) == 0 {
		return nil, domain.NewGenerationError(domain.KindEmptyOutput, "ExtractFrames", "動画からフレームを取得できませんでした", domain.ErrEmptyOutput)
	}
	if err := validateRequest(domain.VideoAnalyzeRequest{Frames: frames}); err != nil {
		return nil, err
	}
	return frames, nil
}
