package visualizer

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"mediastudio/internal/infrastructure/codec"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// 解析器のデフォルト値
const (
	DefaultFFTSize     = 2048
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultSmoothing   = 0.8
)

// PCMAnalyser は、16bit PCMと再生位置から周波数・時間領域データを計算するAnalyserSourceです
type PCMAnalyser struct {
	samples    []float64 // モノラルにミックスした -1..1 のサンプル
	sampleRate int
	fftSize    int
	window     []float64
	fft        *fourier.FFT
	windowed   []float64
	coeffs     []complex128

	mu        sync.Mutex
	position  time.Duration
	clock     func() time.Duration
	smoothing float64
	previous  []float64
	stopped   bool
}

// NewPCMAnalyser は、リトルエンディアン16bitのインターリーブPCMから解析器を作成します
func NewPCMAnalyser(pcm []byte, sampleRate, channels int) (*PCMAnalyser, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("不正なPCM形式です: %dHz %dch", sampleRate, channels)
	}

	frameSize := 2 * channels
	frames := len(pcm) / frameSize
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			offset := i*frameSize + ch*2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[offset:]))) / 32768
		}
		samples[i] = sum / float64(channels)
	}

	// ハン窓の係数は全体が1の列に窓を掛けて得る
	hann := make([]float64, DefaultFFTSize)
	for i := range hann {
		hann[i] = 1
	}
	window.Hann(hann)

	return &PCMAnalyser{
		samples:    samples,
		sampleRate: sampleRate,
		fftSize:    DefaultFFTSize,
		window:     hann,
		fft:        fourier.NewFFT(DefaultFFTSize),
		windowed:   make([]float64, DefaultFFTSize),
		smoothing:  DefaultSmoothing,
		previous:   make([]float64, DefaultFFTSize/2),
	}, nil
}

// NewPCMAnalyserFromWAV は、WAVファイルから解析器を作成します
func NewPCMAnalyserFromWAV(wav []byte) (*PCMAnalyser, error) {
	header, err := codec.ParseWAVHeader(wav)
	if err != nil {
		return nil, err
	}
	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("16bit以外のPCMには対応していません: %dbit", header.BitsPerSample)
	}
	pcm, err := codec.PCMPayload(wav)
	if err != nil {
		return nil, err
	}
	return NewPCMAnalyser(pcm, header.SampleRate, header.Channels)
}

// Duration は音声の長さを返します
func (a *PCMAnalyser) Duration() time.Duration {
	return time.Duration(float64(len(a.samples)) / float64(a.sampleRate) * float64(time.Second))
}

// SetClock は、再生位置を返す関数を設定します
func (a *PCMAnalyser) SetClock(clock func() time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

// Seek は、再生位置を設定します（クロック未設定時に使用）
func (a *PCMAnalyser) Seek(at time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = at
}

// Stop は、解析器を非アクティブにします
func (a *PCMAnalyser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

func (a *PCMAnalyser) currentPosition() time.Duration {
	if a.clock != nil {
		return a.clock()
	}
	return a.position
}

// FrequencyBinCount は周波数ビンの数を返します
func (a *PCMAnalyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// SetSmoothingTimeConstant は平滑化係数を設定します
func (a *PCMAnalyser) SetSmoothingTimeConstant(v float64) {
	if v < 0 || v >= 1 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothing = v
}

// Active は、再生位置が音声の範囲内にあるかを返します
func (a *PCMAnalyser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	pos := a.currentPosition()
	return pos >= 0 && pos < a.Duration()
}

// frame は、現在位置で終わるfftSize個のサンプルを返します
func (a *PCMAnalyser) frame() []float64 {
	end := int(a.currentPosition().Seconds() * float64(a.sampleRate))
	if end > len(a.samples) {
		end = len(a.samples)
	}
	out := make([]float64, a.fftSize)
	start := end - a.fftSize
	for i := range out {
		idx := start + i
		if idx >= 0 && idx < len(a.samples) {
			out[i] = a.samples[idx]
		}
	}
	return out
}

// ByteFrequencyData は、窓関数・FFT・平滑化・dB変換を行い、0〜255でdstに書き込みます
func (a *PCMAnalyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := a.frame()
	for i, v := range samples {
		a.windowed[i] = v * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := a.fftSize / 2
	for k := 0; k < bins; k++ {
		magnitude := cmplx.Abs(a.coeffs[k]) / float64(a.fftSize)
		a.previous[k] = a.smoothing*a.previous[k] + (1-a.smoothing)*magnitude
		if k >= len(dst) {
			continue
		}
		dst[k] = decibelsToByte(a.previous[k])
	}
}

// ByteTimeDomainData は、現在位置の波形を128中心の0〜255でdstに書き込みます
func (a *PCMAnalyser) ByteTimeDomainData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := a.frame()
	for i := range dst {
		if i >= len(samples) {
			dst[i] = 128
			continue
		}
		v := 128 + samples[i]*128
		dst[i] = clampByte(v)
	}
}

func decibelsToByte(magnitude float64) byte {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	scaled := 255 * (db - DefaultMinDecibels) / (DefaultMaxDecibels - DefaultMinDecibels)
	return clampByte(scaled)
}

func clampByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}
