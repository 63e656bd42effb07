package frames

import (
	"context"

	"mediastudio/internal/application"
)

// FileExtractor は、ローカルの動画ファイルをffmpegで開いてフレームを抽出します
type FileExtractor struct {
	sampler     *Sampler
	ffmpegPath  string
	ffprobePath string
}

// NewFileExtractor は新しいFileExtractorインスタンスを作成します
func NewFileExtractor(sampler *Sampler, ffmpegPath, ffprobePath string) *FileExtractor {
	return &FileExtractor{
		sampler:     sampler,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// ExtractFrames は、動画ファイルから最大MaxFrames枚のJPEGフレームを抽出します
func (e *FileExtractor) ExtractFrames(ctx context.Context, path string, progress func(float64)) ([]string, error) {
	src, err := OpenFFmpegSource(ctx, path, e.ffmpegPath, e.ffprobePath)
	if err != nil {
		return nil, err
	}
	return e.sampler.Sample(ctx, src, progress)
}

var _ application.FrameExtractor = (*FileExtractor)(nil)
