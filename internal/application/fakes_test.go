package application

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mediastudio/internal/domain"
)

// fakeStream は、送信したコマンドを記録するテスト用のMusicStreamです
type fakeStream struct {
	mu       sync.Mutex
	calls    []string
	prompts  []domain.WeightedPrompt
	config   domain.MusicGenerationConfig
	messages chan domain.SessionMessage
	closed   bool

	onPlay         []domain.SessionMessage
	closeAfterPlay bool
	playErr        error

	// promptGate が設定されていると、SendWeightedPromptsはゲートが閉じられるまで待機します
	promptGate    chan struct{}
	promptEntered chan struct{}
}

func newFakeStream(onPlay ...domain.SessionMessage) *fakeStream {
	return &fakeStream{
		messages: make(chan domain.SessionMessage, 64),
		onPlay:   onPlay,
	}
}

func (f *fakeStream) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStream) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStream) SendWeightedPrompts(prompts []domain.WeightedPrompt) error {
	f.record("prompts")
	if f.promptGate != nil {
		select {
		case f.promptEntered <- struct{}{}:
		default:
		}
		<-f.promptGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("closed: %w", domain.ErrInvalidSessionState)
	}
	f.prompts = prompts
	return nil
}

func (f *fakeStream) SendGenerationConfig(cfg domain.MusicGenerationConfig) error {
	f.record("config")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("closed: %w", domain.ErrInvalidSessionState)
	}
	f.config = cfg
	return nil
}

func (f *fakeStream) Play() error {
	f.record("play")
	if f.isClosed() {
		return fmt.Errorf("closed: %w", domain.ErrInvalidSessionState)
	}
	if f.playErr != nil {
		return f.playErr
	}
	for _, msg := range f.onPlay {
		f.emit(msg)
	}
	if f.closeAfterPlay {
		f.shutdown("done")
	}
	return nil
}

func (f *fakeStream) Stop() error {
	f.record("stop")
	return nil
}

func (f *fakeStream) Close() error {
	f.record("close")
	f.shutdown("client closed")
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) Messages() <-chan domain.SessionMessage {
	return f.messages
}

func (f *fakeStream) emit(msg domain.SessionMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.messages <- msg
	}
}

func (f *fakeStream) shutdown(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.messages <- domain.ClosedMessage{Reason: reason}
	f.closed = true
	close(f.messages)
}

// fakeTransport は、呼び出しごとにnewStreamでストリームを作るテスト用のMusicTransportです
type fakeTransport struct {
	mu        sync.Mutex
	opens     int
	streams   []*fakeStream
	newStream func() *fakeStream
	openErr   error
	block     bool
}

func (f *fakeTransport) Open(ctx context.Context) (MusicStream, error) {
	f.mu.Lock()
	f.opens++
	block, openErr := f.block, f.openErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if openErr != nil {
		return nil, openErr
	}

	stream := newFakeStream()
	if f.newStream != nil {
		stream = f.newStream()
	}
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return stream, nil
}

func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) Stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

// fakeGenerator は、固定の結果を返すテスト用のMediaGeneratorです
type fakeGenerator struct {
	mu sync.Mutex

	editResult  *domain.EditResult
	imageResult *domain.ImageResult
	videoAsset  *domain.VideoAsset
	analysis    *domain.AnalysisResult
	dialogue    string
	err         error
	blockVideo  bool

	lastPrompt      string
	lastAspectRatio string
	lastImages      domain.ImageSet
	lastFrames      []string
	enhanceCalls    []string
}

func (f *fakeGenerator) EditImage(ctx context.Context, images domain.ImageSet, prompt string) (*domain.EditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastImages, f.lastPrompt = images, prompt
	return f.editResult, f.err
}

func (f *fakeGenerator) GenerateImages(ctx context.Context, prompt, aspectRatio string) (*domain.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt, f.lastAspectRatio = prompt, aspectRatio
	return f.imageResult, f.err
}

func (f *fakeGenerator) GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoAsset, error) {
	if f.blockVideo {
		<-ctx.Done()
		return nil, domain.NewGenerationError(domain.KindTransportFailure, "GenerateVideo", "動画の生成に失敗しました", ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt = req.Prompt
	return f.videoAsset, f.err
}

func (f *fakeGenerator) EnhancePrompt(ctx context.Context, current string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhanceCalls = append(f.enhanceCalls, "image:"+current)
	return strings.TrimSpace("better " + current), f.err
}

func (f *fakeGenerator) EnhanceMusicPrompt(ctx context.Context, current string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhanceCalls = append(f.enhanceCalls, "music:"+current)
	return strings.TrimSpace("groovy " + current), f.err
}

func (f *fakeGenerator) AnalyzeVideoForSound(ctx context.Context, frames []string) (*domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrames = frames
	return f.analysis, f.err
}

func (f *fakeGenerator) SuggestDialogue(ctx context.Context, frames []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrames = frames
	return f.dialogue, f.err
}

// fakeExtractor は、固定のフレーム列を返すテスト用のFrameExtractorです
type fakeExtractor struct {
	frames []string
	err    error
	path   string
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, path string, progress func(float64)) ([]string, error) {
	f.path = path
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.frames {
		if progress != nil {
			progress(float64(i+1) / 16)
		}
	}
	return f.frames, nil
}

// fakeRenderer は、固定のGIFを返すテスト用のPreviewRendererです
type fakeRenderer struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeRenderer) RenderPreview(ctx context.Context, wav []byte) ([]byte, error) {
	f.calls++
	return f.data, f.err
}
