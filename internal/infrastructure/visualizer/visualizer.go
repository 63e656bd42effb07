// Package visualizer は、再生中の音声に同期した周波数バー・波形の描画を行います
package visualizer

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// FrameRate は再描画の頻度です
const FrameRate = 60

// AnalyserSource は、周波数・時間領域のデータを毎フレーム提供する音声解析器です
type AnalyserSource interface {
	// FrequencyBinCount は周波数ビンの数を返します。時間領域のサンプル数はその2倍です。
	FrequencyBinCount() int
	// ByteFrequencyData は各ビンの大きさを0〜255でdstに書き込みます
	ByteFrequencyData(dst []byte)
	// ByteTimeDomainData は波形を128を中心とした0〜255でdstに書き込みます
	ByteTimeDomainData(dst []byte)
	// SetSmoothingTimeConstant は周波数データの平滑化係数を設定します
	SetSmoothingTimeConstant(v float64)
	// Active は音声が再生中かどうかを返します
	Active() bool
}

// Mode は表示モードです
type Mode int

const (
	ModeBars Mode = iota
	ModeWaveform
	ModeCombined
)

// ParseMode は、文字列から表示モードを取得します
func ParseMode(s string) Mode {
	switch s {
	case "waveform":
		return ModeWaveform
	case "combined":
		return ModeCombined
	default:
		return ModeBars
	}
}

// ColorScheme は配色です
type ColorScheme int

const (
	SchemeAurora ColorScheme = iota
	SchemeSunset
	SchemeMono
)

// ParseColorScheme は、文字列から配色を取得します
func ParseColorScheme(s string) ColorScheme {
	switch s {
	case "sunset":
		return SchemeSunset
	case "mono":
		return SchemeMono
	default:
		return SchemeAurora
	}
}

type schemeColors struct {
	background color.RGBA
	bottom     color.RGBA
	top        color.RGBA
	line       color.RGBA
}

var schemes = map[ColorScheme]schemeColors{
	SchemeAurora: {
		background: color.RGBA{R: 8, G: 10, B: 24, A: 255},
		bottom:     color.RGBA{R: 0, G: 255, B: 170, A: 255},
		top:        color.RGBA{R: 120, G: 80, B: 255, A: 255},
		line:       color.RGBA{R: 230, G: 250, B: 255, A: 255},
	},
	SchemeSunset: {
		background: color.RGBA{R: 24, G: 8, B: 16, A: 255},
		bottom:     color.RGBA{R: 255, G: 94, B: 58, A: 255},
		top:        color.RGBA{R: 255, G: 210, B: 90, A: 255},
		line:       color.RGBA{R: 255, G: 245, B: 230, A: 255},
	},
	SchemeMono: {
		background: color.RGBA{R: 0, G: 0, B: 0, A: 255},
		bottom:     color.RGBA{R: 90, G: 90, B: 90, A: 255},
		top:        color.RGBA{R: 240, G: 240, B: 240, A: 255},
		line:       color.RGBA{R: 255, G: 255, B: 255, A: 255},
	},
}

// Options は、ビジュアライザーの設定です
type Options struct {
	Mode        Mode
	Scheme      ColorScheme
	Sensitivity float64 // (0,1) の平滑化係数
	Width       int
	Height      int
}

// DefaultOptions は、デフォルトの設定を返します
func DefaultOptions() Options {
	return Options{
		Mode:        ModeCombined,
		Scheme:      SchemeAurora,
		Sensitivity: 0.8,
		Width:       480,
		Height:      240,
	}
}

// Visualizer は、AnalyserSourceのデータを描画面にレンダリングします
type Visualizer struct {
	opts   Options
	colors schemeColors
	logger *zap.Logger

	freq []byte
	wave []byte

	stopOnce sync.Once
	stop     chan struct{}
}

// NewVisualizer は新しいVisualizerインスタンスを作成します
func NewVisualizer(opts Options, log *zap.Logger) *Visualizer {
	defaults := DefaultOptions()
	if opts.Sensitivity <= 0 || opts.Sensitivity >= 1 {
		opts.Sensitivity = defaults.Sensitivity
	}
	if opts.Width <= 0 {
		opts.Width = defaults.Width
	}
	if opts.Height <= 0 {
		opts.Height = defaults.Height
	}
	p, ok := schemes[opts.Scheme]
	if !ok {
		p = schemes[SchemeAurora]
	}
	return &Visualizer{
		opts:   opts,
		colors: p,
		logger: logger.OrNop(log).Named("visualizer"),
		stop:   make(chan struct{}),
	}
}

// Bounds は描画面の大きさを返します
func (v *Visualizer) Bounds() image.Rectangle {
	return image.Rect(0, 0, v.opts.Width, v.opts.Height)
}

// RenderFrame は、srcの現在のデータで1フレームをdstに描画します
func (v *Visualizer) RenderFrame(dst draw.Image, src AnalyserSource) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, &image.Uniform{C: v.colors.background}, image.Point{}, draw.Src)

	bins := src.FrequencyBinCount()
	if bins <= 0 {
		return
	}

	if v.opts.Mode == ModeBars || v.opts.Mode == ModeCombined {
		if len(v.freq) != bins {
			v.freq = make([]byte, bins)
		}
		src.ByteFrequencyData(v.freq)
		v.drawBars(dst, bounds)
	}
	if v.opts.Mode == ModeWaveform || v.opts.Mode == ModeCombined {
		if len(v.wave) != bins*2 {
			v.wave = make([]byte, bins*2)
		}
		src.ByteTimeDomainData(v.wave)
		v.drawWaveform(dst, bounds)
	}
}

// drawBars は、ビンを幅方向に分割し、大きさに比例した高さのバーを描画します
func (v *Visualizer) drawBars(dst draw.Image, bounds image.Rectangle) {
	w, h := bounds.Dx(), bounds.Dy()
	n := len(v.freq)
	for i, value := range v.freq {
		x0 := bounds.Min.X + i*w/n
		x1 := bounds.Min.X + (i+1)*w/n
		if x1 == x0 {
			x1 = x0 + 1
		}
		barHeight := int(value) * h / 255
		for y := bounds.Max.Y - barHeight; y < bounds.Max.Y; y++ {
			c := v.gradient(bounds.Max.Y-1-y, h)
			for x := x0; x < x1 && x < bounds.Max.X; x++ {
				dst.Set(x, y, c)
			}
		}
	}
}

// gradient は、下端からの高さに応じた縦グラデーションの色を返します
func (v *Visualizer) gradient(fromBottom, height int) color.RGBA {
	if height <= 1 {
		return v.colors.bottom
	}
	t := float64(fromBottom) / float64(height-1)
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t)
	}
	return color.RGBA{
		R: lerp(v.colors.bottom.R, v.colors.top.R),
		G: lerp(v.colors.bottom.G, v.colors.top.G),
		B: lerp(v.colors.bottom.B, v.colors.top.B),
		A: 255,
	}
}

// drawWaveform は、時間領域のサンプルを幅全体にわたる折れ線として描画します
func (v *Visualizer) drawWaveform(dst draw.Image, bounds image.Rectangle) {
	w, h := bounds.Dx(), bounds.Dy()
	n := len(v.wave)
	mid := float64(bounds.Min.Y) + float64(h-1)/2

	point := func(i int) image.Point {
		x := bounds.Min.X
		if n > 1 {
			x += i * (w - 1) / (n - 1)
		}
		amplitude := (float64(v.wave[i]) - 128) / 128
		y := int(mid - amplitude*float64(h-1)/2)
		return image.Pt(x, y)
	}

	prev := point(0)
	for i := 1; i < n; i++ {
		next := point(i)
		drawLine(dst, prev, next, v.colors.line)
		prev = next
	}
	if n == 1 {
		dst.Set(prev.X, prev.Y, v.colors.line)
	}
}

// drawLine は、ブレゼンハムのアルゴリズムで線分を描画します
func drawLine(dst draw.Image, a, b image.Point, c color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		dst.Set(a.X, a.Y, c)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Run は、約60Hzで再描画してsinkに渡します。
// ctxのキャンセル、Stop()、またはsrcの非アクティブ化で終了します。
func (v *Visualizer) Run(ctx context.Context, src AnalyserSource, sink func(frame *image.RGBA)) error {
	src.SetSmoothingTimeConstant(v.opts.Sensitivity)

	surface := image.NewRGBA(v.Bounds())
	ticker := time.NewTicker(time.Second / FrameRate)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			v.logger.Debug("描画ループをキャンセルしました", zap.Int("frames", frames))
			return ctx.Err()
		case <-v.stop:
			v.logger.Debug("描画ループを停止しました", zap.Int("frames", frames))
			return nil
		case <-ticker.C:
			if !src.Active() {
				v.logger.Debug("音声が停止したため描画ループを終了します", zap.Int("frames", frames))
				return nil
			}
			v.RenderFrame(surface, src)
			frames++
			if sink != nil {
				sink(surface)
			}
		}
	}
}

// Stop は描画ループを終了させます
func (v *Visualizer) Stop() {
	v.stopOnce.Do(func() {
		close(v.stop)
	})
}
