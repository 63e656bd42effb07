package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"mediastudio/internal/domain"

	"github.com/tidwall/gjson"
)

// ErrSeekPending は、前のシークが完了する前に次のシークを要求した場合のエラーです
var ErrSeekPending = errors.New("前のシークが完了していません")

// FFmpegSource は、ffprobe/ffmpegを使ってローカル動画ファイルをデコードするVideoSourceです
type FFmpegSource struct {
	path       string
	ffmpegPath string
	duration   time.Duration
	bounds     image.Rectangle

	mu      sync.Mutex
	seeking bool
	current image.Image
}

// OpenFFmpegSource は、ffprobeで動画の長さと解像度を調べてFFmpegSourceを作成します
func OpenFFmpegSource(ctx context.Context, path, ffmpegPath, ffprobePath string) (*FFmpegSource, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %v: %w", path, err, domain.ErrResourceUnavailable)
	}

	duration, width, height, err := parseProbeOutput(out)
	if err != nil {
		return nil, err
	}

	return &FFmpegSource{
		path:       path,
		ffmpegPath: ffmpegPath,
		duration:   duration,
		bounds:     image.Rect(0, 0, width, height),
	}, nil
}

// parseProbeOutput は、ffprobeのJSON出力から長さと解像度を取り出します
func parseProbeOutput(out []byte) (time.Duration, int, int, error) {
	if !gjson.ValidBytes(out) {
		return 0, 0, 0, fmt.Errorf("ffprobeの出力がJSONではありません: %w", domain.ErrResourceUnavailable)
	}

	result := gjson.ParseBytes(out)
	width := int(result.Get("streams.0.width").Int())
	height := int(result.Get("streams.0.height").Int())
	if width <= 0 || height <= 0 {
		return 0, 0, 0, fmt.Errorf("映像ストリームが見つかりません: %w", domain.ErrResourceUnavailable)
	}

	// format.durationは文字列で出力される
	seconds, err := strconv.ParseFloat(result.Get("format.duration").String(), 64)
	if err != nil || seconds <= 0 {
		return 0, 0, 0, fmt.Errorf("動画の長さが不明です: %w", domain.ErrResourceUnavailable)
	}

	return time.Duration(seconds * float64(time.Second)), width, height, nil
}

// Duration は動画の長さを返します
func (s *FFmpegSource) Duration() time.Duration {
	return s.duration
}

// Bounds は動画のネイティブ解像度を返します
func (s *FFmpegSource) Bounds() image.Rectangle {
	return s.bounds
}

// Seek は、指定位置のフレームをデコードします
func (s *FFmpegSource) Seek(ctx context.Context, at time.Duration) error {
	s.mu.Lock()
	if s.seeking {
		s.mu.Unlock()
		return ErrSeekPending
	}
	s.seeking = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.seeking = false
		s.mu.Unlock()
	}()

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffmpeg seek %v: %w", at, err)
	}
	if len(out) == 0 {
		return fmt.Errorf("%vにフレームがありません: %w", at, domain.ErrResourceUnavailable)
	}

	frame, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return fmt.Errorf("フレームのデコードに失敗: %w", err)
	}

	s.mu.Lock()
	s.current = frame
	s.mu.Unlock()
	return nil
}

// DrawFrame は、直前のシークで得たフレームをdstに描画します
func (s *FFmpegSource) DrawFrame(dst draw.Image) error {
	s.mu.Lock()
	frame := s.current
	s.mu.Unlock()

	if frame == nil {
		return fmt.Errorf("シーク前に描画が要求されました: %w", domain.ErrResourceUnavailable)
	}
	draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
	return nil
}
