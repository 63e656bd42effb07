package visualizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"time"

	"go.uber.org/zap"
)

const gradientSteps = 64

// GIFOptions は、プレビューGIFの設定です
type GIFOptions struct {
	Frames int // フレーム数
	Delay  int // フレーム間隔（1/100秒単位）
}

// DefaultGIFOptions は、デフォルトのGIF設定を返します
func DefaultGIFOptions() GIFOptions {
	return GIFOptions{Frames: 24, Delay: 8}
}

// colorPalette は、背景・波形・グラデーションの色だけからなるパレットを作ります
func (v *Visualizer) colorPalette() color.Palette {
	p := make(color.Palette, 0, gradientSteps+2)
	p = append(p, v.colors.background, v.colors.line)
	for i := 0; i < gradientSteps; i++ {
		p = append(p, v.gradient(i, gradientSteps))
	}
	return p
}

// RenderGIF は、音声全体から等間隔に選んだ再生位置をクロックとして描画ループを回し、
// 各フレームをアニメーションGIFにまとめます
func (v *Visualizer) RenderGIF(ctx context.Context, a *PCMAnalyser, opts GIFOptions) ([]byte, error) {
	defaults := DefaultGIFOptions()
	if opts.Frames <= 0 {
		opts.Frames = defaults.Frames
	}
	if opts.Delay <= 0 {
		opts.Delay = defaults.Delay
	}

	duration := a.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("音声が空のためGIFを作成できません")
	}

	// sinkはRunと同じゴルーチンで呼ばれるため、positionへのアクセスは同期不要
	step := 0
	position := sampleAt(duration, step, opts.Frames)
	a.SetClock(func() time.Duration { return position })

	p := v.colorPalette()
	anim := &gif.GIF{LoopCount: 0}
	sink := func(surface *image.RGBA) {
		frame := image.NewPaletted(surface.Bounds(), p)
		draw.Draw(frame, frame.Bounds(), surface, surface.Bounds().Min, draw.Src)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, opts.Delay)

		step++
		if step >= opts.Frames {
			position = duration
			return
		}
		position = sampleAt(duration, step, opts.Frames)
	}

	if err := v.Run(ctx, a, sink); err != nil {
		return nil, fmt.Errorf("GIFの作成が中断されました: %w", err)
	}
	if len(anim.Image) == 0 {
		return nil, fmt.Errorf("GIFのフレームが描画されませんでした")
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("GIFのエンコードに失敗: %w", err)
	}

	v.logger.Info("ビジュアライザーGIFを作成しました",
		zap.Int("frames", len(anim.Image)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// sampleAt は、frames枚のうちi枚目を描く再生位置を返します
func sampleAt(duration time.Duration, i, frames int) time.Duration {
	return time.Duration(int64(duration) * int64(i+1) / int64(frames+1))
}
