// Package attachments は、Discordの添付ファイルをダウンロードします
package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/logger"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
)

// DefaultMaxBytes は、1ファイルあたりのダウンロード上限です
const DefaultMaxBytes = 50 << 20

const fetchOp = "FetchAttachment"

// Downloader は、添付ファイルのURLからデータを取得します
type Downloader struct {
	client   *req.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewDownloader は新しいDownloaderインスタンスを作成します
func NewDownloader(timeout time.Duration, log *zap.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		client:   req.C().SetTimeout(timeout).SetUserAgent("mediastudio-bot"),
		maxBytes: DefaultMaxBytes,
		logger:   logger.OrNop(log).Named("attachments"),
	}
}

// File は、ダウンロードした添付ファイルです
type File struct {
	Data        []byte
	ContentType string
}

// Fetch は、URLの内容をメモリに読み込みます
func (d *Downloader) Fetch(ctx context.Context, url string, size int64) (*File, error) {
	if size > d.maxBytes {
		return nil, d.tooLarge(size)
	}

	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, d.fetchFailed(err)
	}
	if !resp.IsSuccessState() {
		return nil, d.fetchFailed(fmt.Errorf("status %d", resp.StatusCode))
	}

	data := resp.Bytes()
	if int64(len(data)) > d.maxBytes {
		return nil, d.tooLarge(int64(len(data)))
	}

	contentType := resp.GetContentType()
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	d.logger.Debug("添付ファイルをダウンロードしました", zap.Int("bytes", len(data)), zap.String("content_type", contentType))
	return &File{Data: data, ContentType: contentType}, nil
}

// FetchToFile は、URLの内容を一時ファイルに保存してパスを返します。
// 呼び出し側が不要になったファイルを削除します。
func (d *Downloader) FetchToFile(ctx context.Context, url, filename string, size int64) (string, error) {
	if size > d.maxBytes {
		return "", d.tooLarge(size)
	}

	dir, err := os.MkdirTemp("", "mediastudio-*")
	if err != nil {
		return "", fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(filename))

	resp, err := d.client.R().SetContext(ctx).SetOutputFile(path).Get(url)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", d.fetchFailed(err)
	}
	if !resp.IsSuccessState() {
		_ = os.RemoveAll(dir)
		return "", d.fetchFailed(fmt.Errorf("status %d", resp.StatusCode))
	}
	return path, nil
}

// fetchFailed は、ダウンロードの失敗をGenerationErrorにします。
// 元のエラーには署名付きURLが含まれるため、利用者向けのメッセージには出しません。
func (d *Downloader) fetchFailed(err error) error {
	d.logger.Warn("添付ファイルのダウンロードに失敗しました", zap.Error(err))
	return domain.NewGenerationError(domain.KindTransportFailure, fetchOp, "添付ファイルのダウンロードに失敗しました", err)
}

func (d *Downloader) tooLarge(size int64) error {
	return fmt.Errorf("%w: 添付ファイルが大きすぎます (%dバイト、上限 %dバイト)", domain.ErrInvalidPrompt, size, d.maxBytes)
}

// Remove は、FetchToFileで作成した一時ファイルを削除します
func Remove(path string) {
	_ = os.RemoveAll(filepath.Dir(path))
}
