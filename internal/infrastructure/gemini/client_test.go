package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/config"

	"google.golang.org/genai"
)

// fakeBackend は、外部APIを呼び出さないテスト用のbackendです
type fakeBackend struct {
	mu sync.Mutex

	contentResp *genai.GenerateContentResponse
	contentErr  error
	imagesResp  *genai.GenerateImagesResponse
	imagesErr   error
	videoOp     *genai.GenerateVideosOperation
	videoErr    error
	pollOps     []*genai.GenerateVideosOperation
	pollErr     error
	download    []byte
	downloadErr error

	contentCalls  int
	imagesCalls   int
	videoCalls    int
	pollCalls     int
	downloadCalls int

	lastModel    string
	lastContents []*genai.Content
	lastConfig   *genai.GenerateContentConfig
	lastPrompt   string
	lastImageCfg *genai.GenerateImagesConfig
	lastSeed     *genai.Image
}

func (f *fakeBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentCalls++
	f.lastModel = model
	f.lastContents = contents
	f.lastConfig = cfg
	return f.contentResp, f.contentErr
}

func (f *fakeBackend) GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagesCalls++
	f.lastModel = model
	f.lastPrompt = prompt
	f.lastImageCfg = cfg
	return f.imagesResp, f.imagesErr
}

func (f *fakeBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	f.lastModel = model
	f.lastPrompt = prompt
	f.lastSeed = image
	return f.videoOp, f.videoErr
}

func (f *fakeBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.pollOps) == 0 {
		return op, nil
	}
	next := f.pollOps[0]
	f.pollOps = f.pollOps[1:]
	return next, nil
}

func (f *fakeBackend) DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	return f.download, f.downloadErr
}

func testConfig() *config.GeminiConfig {
	cfg := config.DefaultGeminiConfig()
	cfg.PollInterval = time.Millisecond
	return cfg
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func mustImage(t *testing.T, data, name string) domain.EncodedImage {
	t.Helper()
	img, err := domain.NewEncodedImage(b64(data), "image/png", name)
	if err != nil {
		t.Fatalf("画像の作成に失敗: %v", err)
	}
	return img
}

func TestEditImage_SendsImagesThenPrompt(t *testing.T) {
	fake := &fakeBackend{
		contentResp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "first comment"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("edited-1")}},
					{Text: "second comment"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("edited-2")}},
				}},
			}},
		},
	}
	client := newMediaClient(fake, testConfig(), nil)

	images := domain.NewImageSet(mustImage(t, "primary", "a.png"), mustImage(t, "secondary", "b.png"))
	result, err := client.EditImage(context.Background(), images, "make it blue")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if fake.contentCalls != 1 {
		t.Errorf("期待される呼び出し回数: 1, 実際: %d", fake.contentCalls)
	}
	if len(fake.lastContents) != 1 {
		t.Fatalf("期待されるコンテンツ数: 1, 実際: %d", len(fake.lastContents))
	}
	parts := fake.lastContents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("期待されるパート数: 3, 実際: %d", len(parts))
	}
	if string(parts[0].InlineData.Data) != "primary" || string(parts[1].InlineData.Data) != "secondary" {
		t.Errorf("画像の順序が保持されていません")
	}
	if parts[2].Text != "make it blue" {
		t.Errorf("期待されるプロンプト: make it blue, 実際: %s", parts[2].Text)
	}
	if strings.Join(fake.lastConfig.ResponseModalities, ",") != "IMAGE,TEXT" {
		t.Errorf("期待されるモダリティ: IMAGE,TEXT, 実際: %v", fake.lastConfig.ResponseModalities)
	}

	if result.Image == nil || result.Image.Data != b64("edited-1") {
		t.Errorf("最初の画像が採用されるべきです: %+v", result.Image)
	}
	if result.Text != "first comment" {
		t.Errorf("期待されるテキスト: first comment, 実際: %s", result.Text)
	}
}

func TestEditImage_NoImageIsEmptyOutput(t *testing.T) {
	fake := &fakeBackend{contentResp: textResponse("I cannot edit this")}
	client := newMediaClient(fake, testConfig(), nil)

	_, err := client.EditImage(context.Background(), domain.NewImageSet(mustImage(t, "x", "x.png")), "edit")
	if !errors.Is(err, domain.ErrEmptyOutput) {
		t.Errorf("ErrEmptyOutputが期待されます: %v", err)
	}
}

func TestGenerateImages_RedCube(t *testing.T) {
	fake := &fakeBackend{
		imagesResp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{ImageBytes: []byte("jpeg-bytes"), MIMEType: "image/jpeg"}},
			},
		},
	}
	client := newMediaClient(fake, testConfig(), nil)

	result, err := client.GenerateImages(context.Background(), "A red cube on a white background", "1:1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if fake.imagesCalls != 1 {
		t.Errorf("期待される呼び出し回数: 1, 実際: %d", fake.imagesCalls)
	}
	if fake.lastImageCfg.NumberOfImages != 1 || fake.lastImageCfg.AspectRatio != "1:1" || fake.lastImageCfg.OutputMIMEType != "image/jpeg" {
		t.Errorf("画像生成設定が不正です: %+v", fake.lastImageCfg)
	}
	if result.Data != b64("jpeg-bytes") {
		t.Errorf("期待されるデータ: %s, 実際: %s", b64("jpeg-bytes"), result.Data)
	}
	if result.MimeType != "image/jpeg" {
		t.Errorf("期待されるMIMEタイプ: image/jpeg, 実際: %s", result.MimeType)
	}
}

func TestGenerateImages_ZeroImages(t *testing.T) {
	fake := &fakeBackend{imagesResp: &genai.GenerateImagesResponse{}}
	client := newMediaClient(fake, testConfig(), nil)

	_, err := client.GenerateImages(context.Background(), "prompt", "1:1")
	if !errors.Is(err, domain.ErrEmptyOutput) {
		t.Errorf("ErrEmptyOutputが期待されます: %v", err)
	}
}

func TestGenerateVideo_PollsUntilDone(t *testing.T) {
	final := &genai.GenerateVideosOperation{
		Name: "operations/video-1",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{
				{Video: &genai.Video{URI: "https://example.test/video.mp4", MIMEType: "video/mp4"}},
			},
		},
	}
	fake := &fakeBackend{
		videoOp:  &genai.GenerateVideosOperation{Name: "operations/video-1"},
		pollOps:  []*genai.GenerateVideosOperation{{Name: "operations/video-1"}, {Name: "operations/video-1"}, final},
		download: []byte("mp4-bytes"),
	}
	client := newMediaClient(fake, testConfig(), nil)

	seed := mustImage(t, "seed", "seed.png")
	asset, err := client.GenerateVideo(context.Background(), domain.VideoRequest{Prompt: "a cat", SeedImage: &seed})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if fake.videoCalls != 1 || fake.pollCalls != 3 || fake.downloadCalls != 1 {
		t.Errorf("呼び出し回数が不正です: submit=%d poll=%d download=%d", fake.videoCalls, fake.pollCalls, fake.downloadCalls)
	}
	if fake.lastModel != testConfig().VideoModel {
		t.Errorf("期待されるモデル: %s, 実際: %s", testConfig().VideoModel, fake.lastModel)
	}
	if fake.lastSeed == nil || string(fake.lastSeed.ImageBytes) != "seed" {
		t.Errorf("シード画像が送信されていません")
	}
	if string(asset.Data) != "mp4-bytes" || asset.URI != "https://example.test/video.mp4" || asset.OperationName != "operations/video-1" {
		t.Errorf("動画アセットが不正です: %+v", asset)
	}
}

func TestGenerateVideo_OperationErrorAndMissingURI(t *testing.T) {
	tests := []struct {
		name string
		op   *genai.GenerateVideosOperation
	}{
		{
			name: "オペレーションエラー",
			op:   &genai.GenerateVideosOperation{Done: true, Error: map[string]any{"message": "blocked"}},
		},
		{
			name: "動画なし",
			op:   &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{}},
		},
		{
			name: "URIなし",
			op: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
				GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{}}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{videoOp: tt.op}
			client := newMediaClient(fake, testConfig(), nil)

			_, err := client.GenerateVideo(context.Background(), domain.VideoRequest{Prompt: "p"})
			if !errors.Is(err, domain.ErrEmptyOutput) {
				t.Errorf("ErrEmptyOutputが期待されます: %v", err)
			}
			if fake.downloadCalls != 0 {
				t.Errorf("ダウンロードは呼ばれるべきではありません")
			}
		})
	}
}

func TestGenerateVideo_CancelledWhilePolling(t *testing.T) {
	fake := &fakeBackend{videoOp: &genai.GenerateVideosOperation{Name: "operations/never"}}
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	client := newMediaClient(fake, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.GenerateVideo(ctx, domain.VideoRequest{Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("context.DeadlineExceededが期待されます: %v", err)
	}
	if domain.KindOf(err) != domain.KindTransportFailure {
		t.Errorf("期待される種別: TransportFailure, 実際: %s", domain.KindOf(err))
	}
}

func TestEnhancePrompt(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		raw      string
		want     string
		wantErr  bool
		contains string
	}{
		{name: "書き換え", current: "a cat", raw: "  \"A fluffy cat in golden light\"  ", want: "A fluffy cat in golden light", contains: "a cat"},
		{name: "新規作成", current: "", raw: "A lighthouse at dusk", want: "A lighthouse at dusk", contains: "Invent"},
		{name: "空の応答", current: "x", raw: " \"\" ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{contentResp: textResponse(tt.raw)}
			client := newMediaClient(fake, testConfig(), nil)

			got, err := client.EnhancePrompt(context.Background(), tt.current)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrEmptyOutput) {
					t.Errorf("ErrEmptyOutputが期待されます: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tt.want {
				t.Errorf("期待される結果: %q, 実際: %q", tt.want, got)
			}
			if !strings.Contains(fake.lastContents[0].Parts[0].Text, tt.contains) {
				t.Errorf("指示テンプレートに %q が含まれていません", tt.contains)
			}
		})
	}
}

func TestEnhanceMusicPrompt_UsesMusicTemplate(t *testing.T) {
	fake := &fakeBackend{contentResp: textResponse("Lo-fi hip hop with warm Rhodes")}
	client := newMediaClient(fake, testConfig(), nil)

	got, err := client.EnhanceMusicPrompt(context.Background(), "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got != "Lo-fi hip hop with warm Rhodes" {
		t.Errorf("予期しない結果: %s", got)
	}
	if !strings.Contains(fake.lastContents[0].Parts[0].Text, "music") {
		t.Errorf("音楽用テンプレートが使用されていません")
	}
}

func TestAnalyzeVideoForSound(t *testing.T) {
	frames := []string{b64("f1"), b64("f2"), b64("f3")}

	t.Run("正常", func(t *testing.T) {
		fake := &fakeBackend{contentResp: textResponse(`{"sceneDescription":"A calm beach at sunset","musicPrompt":"Ambient synth pads, slow tempo"}`)}
		client := newMediaClient(fake, testConfig(), nil)

		result, err := client.AnalyzeVideoForSound(context.Background(), frames)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if result.SceneDescription != "A calm beach at sunset" || result.MusicPrompt != "Ambient synth pads, slow tempo" {
			t.Errorf("予期しない解析結果: %+v", result)
		}
		if fake.lastConfig.ResponseMIMEType != "application/json" || fake.lastConfig.ResponseSchema == nil {
			t.Errorf("構造化出力が要求されていません")
		}
		parts := fake.lastContents[0].Parts
		if len(parts) != len(frames)+1 {
			t.Fatalf("期待されるパート数: %d, 実際: %d", len(frames)+1, len(parts))
		}
		if string(parts[0].InlineData.Data) != "f1" || parts[0].InlineData.MIMEType != "image/jpeg" {
			t.Errorf("フレームがJPEGインラインデータとして送信されていません")
		}
	})

	t.Run("フィールド欠落", func(t *testing.T) {
		fake := &fakeBackend{contentResp: textResponse(`{"sceneDescription":"A beach"}`)}
		client := newMediaClient(fake, testConfig(), nil)

		_, err := client.AnalyzeVideoForSound(context.Background(), frames)
		if !errors.Is(err, domain.ErrEmptyOutput) {
			t.Errorf("ErrEmptyOutputが期待されます: %v", err)
		}
	})
}

func TestSuggestDialogue(t *testing.T) {
	fake := &fakeBackend{contentResp: textResponse("Look at the waves.")}
	client := newMediaClient(fake, testConfig(), nil)

	got, err := client.SuggestDialogue(context.Background(), []string{b64("f1")})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got != "Look at the waves." {
		t.Errorf("予期しない結果: %s", got)
	}

	fake.contentResp = &genai.GenerateContentResponse{}
	if _, err := client.SuggestDialogue(context.Background(), []string{b64("f1")}); !errors.Is(err, domain.ErrEmptyOutput) {
		t.Errorf("ErrEmptyOutputが期待されます: %v", err)
	}
}

func TestSafetyBlockIsEmptyOutput(t *testing.T) {
	fake := &fakeBackend{
		contentResp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		},
	}
	client := newMediaClient(fake, testConfig(), nil)

	_, err := client.EnhancePrompt(context.Background(), "p")
	if domain.KindOf(err) != domain.KindEmptyOutput {
		t.Errorf("期待される種別: EmptyOrRefusedOutput, 実際: %s", domain.KindOf(err))
	}
}

func TestQuotaErrorNormalization(t *testing.T) {
	quotaErrors := []error{
		genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"},
		&genai.APIError{Code: 429, Message: "quota"},
		fmt.Errorf("wrapped: %w", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}),
		errors.New("rpc error: RESOURCE_EXHAUSTED"),
	}

	ops := map[string]func(c *MediaClient) error{
		"EditImage": func(c *MediaClient) error {
			_, err := c.EditImage(context.Background(), domain.NewImageSet(mustImage(t, "x", "x.png")), "p")
			return err
		},
		"GenerateImages": func(c *MediaClient) error {
			_, err := c.GenerateImages(context.Background(), "p", "1:1")
			return err
		},
		"GenerateVideo": func(c *MediaClient) error {
			_, err := c.GenerateVideo(context.Background(), domain.VideoRequest{Prompt: "p"})
			return err
		},
		"EnhancePrompt": func(c *MediaClient) error {
			_, err := c.EnhancePrompt(context.Background(), "")
			return err
		},
		"EnhanceMusicPrompt": func(c *MediaClient) error {
			_, err := c.EnhanceMusicPrompt(context.Background(), "")
			return err
		},
		"AnalyzeVideoForSound": func(c *MediaClient) error {
			_, err := c.AnalyzeVideoForSound(context.Background(), []string{b64("f")})
			return err
		},
		"SuggestDialogue": func(c *MediaClient) error {
			_, err := c.SuggestDialogue(context.Background(), []string{b64("f")})
			return err
		},
	}

	for name, call := range ops {
		for i, quotaErr := range quotaErrors {
			t.Run(fmt.Sprintf("%s/%d", name, i), func(t *testing.T) {
				fake := &fakeBackend{contentErr: quotaErr, imagesErr: quotaErr, videoErr: quotaErr}
				err := call(newMediaClient(fake, testConfig(), nil))

				if !errors.Is(err, domain.ErrQuotaExceeded) {
					t.Errorf("ErrQuotaExceededが期待されます: %v", err)
				}
				if errors.Is(err, domain.ErrTransportFailure) {
					t.Errorf("TransportFailureと区別されるべきです")
				}
			})
		}
	}
}

func TestGenerateVideo_QuotaWhilePollingAndDownloading(t *testing.T) {
	done := &genai.GenerateVideosOperation{
		Name: "operations/video-1",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{
				{Video: &genai.Video{URI: "https://example.test/video.mp4", MIMEType: "video/mp4"}},
			},
		},
	}
	quotaErrors := []error{
		genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"},
		errors.New("googleapi: Error 429: Too Many Requests"),
	}

	for i, quotaErr := range quotaErrors {
		t.Run(fmt.Sprintf("ポーリング/%d", i), func(t *testing.T) {
			fake := &fakeBackend{
				videoOp: &genai.GenerateVideosOperation{Name: "operations/video-1"},
				pollErr: quotaErr,
			}
			_, err := newMediaClient(fake, testConfig(), nil).GenerateVideo(context.Background(), domain.VideoRequest{Prompt: "p"})

			if !errors.Is(err, domain.ErrQuotaExceeded) {
				t.Errorf("ErrQuotaExceededが期待されます: %v", err)
			}
			if fake.pollCalls != 1 || fake.downloadCalls != 0 {
				t.Errorf("呼び出し回数が不正です: poll=%d download=%d", fake.pollCalls, fake.downloadCalls)
			}
		})

		t.Run(fmt.Sprintf("ダウンロード/%d", i), func(t *testing.T) {
			fake := &fakeBackend{
				videoOp:     &genai.GenerateVideosOperation{Name: "operations/video-1"},
				pollOps:     []*genai.GenerateVideosOperation{done},
				downloadErr: quotaErr,
			}
			_, err := newMediaClient(fake, testConfig(), nil).GenerateVideo(context.Background(), domain.VideoRequest{Prompt: "p"})

			if !errors.Is(err, domain.ErrQuotaExceeded) {
				t.Errorf("ErrQuotaExceededが期待されます: %v", err)
			}
			if errors.Is(err, domain.ErrTransportFailure) {
				t.Errorf("TransportFailureと区別されるべきです")
			}
			if fake.downloadCalls != 1 {
				t.Errorf("ダウンロードが1回呼ばれるべきです: %d", fake.downloadCalls)
			}
		})
	}
}

func TestTransportErrorHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: connection refused")
	fake := &fakeBackend{imagesErr: cause}
	client := newMediaClient(fake, testConfig(), nil)

	_, err := client.GenerateImages(context.Background(), "p", "1:1")
	if !errors.Is(err, domain.ErrTransportFailure) {
		t.Fatalf("ErrTransportFailureが期待されます: %v", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		t.Errorf("元のエラーが利用者向けメッセージに含まれています: %s", err.Error())
	}
	if err.Error() != "画像の生成に失敗しました" {
		t.Errorf("期待されるメッセージ: 画像の生成に失敗しました, 実際: %s", err.Error())
	}

	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) || !errors.Is(genErr.Cause(), cause) {
		t.Errorf("元のエラーはCause()で取得できるべきです")
	}
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{genai.APIError{Code: 429}, true},
		{genai.APIError{Code: 500, Status: "INTERNAL"}, false},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("timeout"), false},
	}

	for _, tt := range tests {
		if got := isQuotaError(tt.err); got != tt.want {
			t.Errorf("isQuotaError(%v): 期待される値: %v, 実際: %v", tt.err, tt.want, got)
		}
	}
}
