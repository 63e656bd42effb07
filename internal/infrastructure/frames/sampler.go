// Package frames は、動画から一定間隔で静止画フレームを抽出します
package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// サンプリングのデフォルト値
const (
	DefaultMaxFrames   = 16
	DefaultInterval    = time.Second
	DefaultStartOffset = 100 * time.Millisecond
	DefaultJPEGQuality = 80
)

// VideoSource は、シーク可能な動画デコーダです。
// 同時に保留できるシークは1つだけで、Seekはシーク完了まで戻りません。
type VideoSource interface {
	// Duration は動画の長さを返します
	Duration() time.Duration
	// Bounds は動画のネイティブ解像度を返します
	Bounds() image.Rectangle
	// Seek は再生位置を移動し、デコーダの完了通知まで待機します
	Seek(ctx context.Context, at time.Duration) error
	// DrawFrame は現在位置のフレームをdstに描画します
	DrawFrame(dst draw.Image) error
}

// ProgressFunc は、キャプチャ済み枚数/最大枚数の割合を受け取ります
type ProgressFunc func(fraction float64)

// Options は、サンプリングの設定です
type Options struct {
	MaxFrames   int
	Interval    time.Duration
	StartOffset time.Duration
	JPEGQuality int
}

// DefaultOptions は、デフォルトのサンプリング設定を返します
func DefaultOptions() Options {
	return Options{
		MaxFrames:   DefaultMaxFrames,
		Interval:    DefaultInterval,
		StartOffset: DefaultStartOffset,
		JPEGQuality: DefaultJPEGQuality,
	}
}

// Sampler は、VideoSourceからフレームを順番にキャプチャします
type Sampler struct {
	opts   Options
	logger *zap.Logger
}

// NewSampler は新しいSamplerインスタンスを作成します
func NewSampler(opts Options, log *zap.Logger) *Sampler {
	defaults := DefaultOptions()
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaults.MaxFrames
	}
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.StartOffset < 0 || opts.StartOffset >= opts.Interval {
		opts.StartOffset = defaults.StartOffset
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaults.JPEGQuality
	}
	return &Sampler{opts: opts, logger: logger.OrNop(log)}
}

// MaxFrames は最大フレーム数を返します
func (s *Sampler) MaxFrames() int {
	return s.opts.MaxFrames
}

// ExpectedFrames は、長さdurationの動画から得られるフレーム数を返します
func (s *Sampler) ExpectedFrames(duration time.Duration) int {
	if duration <= 0 {
		return 0
	}
	n := int(duration / s.opts.Interval)
	if n > s.opts.MaxFrames {
		return s.opts.MaxFrames
	}
	return n
}

// Sample は、動画からフレームを抽出し、data URLプレフィックスなしのbase64 JPEGとして返します。
// フレームkは区間[k*I, (k+1)*I)が動画の長さに収まる場合にのみキャプチャされます。
// 到達可能なフレームがない場合は空のスライスを返します。
func (s *Sampler) Sample(ctx context.Context, src VideoSource, progress ProgressFunc) ([]string, error) {
	if src == nil {
		return nil, fmt.Errorf("動画ソースがありません: %w", domain.ErrResourceUnavailable)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("動画の解像度が不明です: %w", domain.ErrResourceUnavailable)
	}

	total := s.ExpectedFrames(src.Duration())
	frames := make([]string, 0, total)
	if total == 0 {
		s.logger.Warn("キャプチャ可能なフレームがありません", zap.Duration("duration", src.Duration()))
		return frames, nil
	}

	// 描画面はネイティブ解像度で1枚だけ確保し、全キャプチャで再利用する
	surface := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	var buf bytes.Buffer

	for k := 0; k < total; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("フレーム抽出が中断されました: %w", err)
		}

		at := s.opts.StartOffset + time.Duration(k)*s.opts.Interval
		if err := src.Seek(ctx, at); err != nil {
			return nil, fmt.Errorf("%vへのシークに失敗: %w", at, err)
		}
		if err := src.DrawFrame(surface); err != nil {
			return nil, fmt.Errorf("%vのフレーム描画に失敗: %w", at, err)
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, surface, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("フレームのJPEGエンコードに失敗: %w", err)
		}
		frames = append(frames, base64.StdEncoding.EncodeToString(buf.Bytes()))

		if progress != nil {
			progress(float64(len(frames)) / float64(s.opts.MaxFrames))
		}
	}

	s.logger.Info("フレーム抽出が完了しました",
		zap.Int("frames", len(frames)),
		zap.Duration("duration", src.Duration()))
	return frames, nil
}
