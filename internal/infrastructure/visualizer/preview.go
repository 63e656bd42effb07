package visualizer

import (
	"context"
	"fmt"

	"mediastudio/internal/application"
)

// GIFRenderer は、WAV音声からビジュアライザーのプレビューGIFを作成します
type GIFRenderer struct {
	visualizer *Visualizer
	opts       GIFOptions
}

// NewGIFRenderer は新しいGIFRendererインスタンスを作成します
func NewGIFRenderer(v *Visualizer, opts GIFOptions) *GIFRenderer {
	return &GIFRenderer{visualizer: v, opts: opts}
}

// RenderPreview は、16ビットPCMのWAVをアニメーションGIFに変換します
func (r *GIFRenderer) RenderPreview(ctx context.Context, wav []byte) ([]byte, error) {
	analyser, err := NewPCMAnalyserFromWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("プレビュー用の音声解析に失敗: %w", err)
	}
	return r.visualizer.RenderGIF(ctx, analyser, r.opts)
}

var _ application.PreviewRenderer = (*GIFRenderer)(nil)
