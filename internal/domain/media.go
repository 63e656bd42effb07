package domain

import (
	"fmt"
	"strings"
	"time"
)

// EncodedImage は、base64エンコード済みの画像を表す値オブジェクトです
type EncodedImage struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
}

// NewEncodedImage は新しいEncodedImageを作成します
func NewEncodedImage(data, mimeType, name string) (EncodedImage, error) {
	if data == "" {
		return EncodedImage{}, fmt.Errorf("画像データが空です")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return EncodedImage{}, fmt.Errorf("画像以外のMIMEタイプです: %s", mimeType)
	}
	return EncodedImage{Data: data, MimeType: mimeType, Name: name}, nil
}

// ImageSet は、1回の編集リクエストで送る順序付きの画像集合です。
// 先頭の画像がプライマリとして扱われます。
type ImageSet struct {
	images []EncodedImage
}

// NewImageSet は新しいImageSetを作成します
func NewImageSet(images ...EncodedImage) ImageSet {
	copied := make([]EncodedImage, len(images))
	copy(copied, images)
	return ImageSet{images: copied}
}

// Add は画像を末尾に追加した新しいImageSetを返します
func (s ImageSet) Add(image EncodedImage) ImageSet {
	return NewImageSet(append(s.Images(), image)...)
}

// Images は画像のコピーを順序どおりに返します
func (s ImageSet) Images() []EncodedImage {
	copied := make([]EncodedImage, len(s.images))
	copy(copied, s.images)
	return copied
}

// Primary は先頭の画像を返します
func (s ImageSet) Primary() (EncodedImage, bool) {
	if len(s.images) == 0 {
		return EncodedImage{}, false
	}
	return s.images[0], true
}

// Len は画像の枚数を返します
func (s ImageSet) Len() int {
	return len(s.images)
}

// IsEmpty は画像が1枚もないかどうかを判定します
func (s ImageSet) IsEmpty() bool {
	return len(s.images) == 0
}

// EditResult は、画像編集の結果です
type EditResult struct {
	Image *EncodedImage
	Text  string
}

// HasText は、コメントテキストが含まれているかを判定します
func (r EditResult) HasText() bool {
	return r.Text != ""
}

// ImageResult は、画像生成の結果です（base64文字列1枚）
type ImageResult struct {
	Data     string
	MimeType string
}

// VideoAsset は、ダウンロード済みの生成動画です
type VideoAsset struct {
	Data          []byte
	MimeType      string
	URI           string
	OperationName string
}

// AnalysisResult は、動画解析の結果です
type AnalysisResult struct {
	SceneDescription string `json:"sceneDescription"`
	MusicPrompt      string `json:"musicPrompt"`
}

// Validate は両フィールドが空でないことを検証します
func (r AnalysisResult) Validate() error {
	if strings.TrimSpace(r.SceneDescription) == "" {
		return fmt.Errorf("sceneDescriptionが空です: %w", ErrEmptyOutput)
	}
	if strings.TrimSpace(r.MusicPrompt) == "" {
		return fmt.Errorf("musicPromptが空です: %w", ErrEmptyOutput)
	}
	return nil
}

// WavAsset は、PCMチャンクをWAVコンテナに包んだ完成済みの音声です
type WavAsset struct {
	data          []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
	ChunkCount    int
	CreatedAt     time.Time
}

// NewWavAsset は新しいWavAssetを作成します
func NewWavAsset(data []byte, sampleRate, channels, bitsPerSample, chunkCount int) *WavAsset {
	copied := make([]byte, len(data))
	copy(copied, data)
	return &WavAsset{
		data:          copied,
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		ChunkCount:    chunkCount,
		CreatedAt:     time.Now(),
	}
}

// Bytes はWAVファイル全体のコピーを返します
func (a *WavAsset) Bytes() []byte {
	copied := make([]byte, len(a.data))
	copy(copied, a.data)
	return copied
}

// Size はWAVファイルのバイト数を返します
func (a *WavAsset) Size() int {
	return len(a.data)
}

// Duration はPCMペイロードの再生時間を返します
func (a *WavAsset) Duration() time.Duration {
	const headerSize = 44
	bytesPerSecond := a.SampleRate * a.Channels * a.BitsPerSample / 8
	if bytesPerSecond <= 0 || len(a.data) <= headerSize {
		return 0
	}
	payload := len(a.data) - headerSize
	return time.Duration(float64(payload) / float64(bytesPerSecond) * float64(time.Second))
}

// Asset は、ハンドル経由で参照される生成済みメディアのバイト列です
type Asset struct {
	Data      []byte
	MimeType  string
	Name      string
	CreatedAt time.Time
}
