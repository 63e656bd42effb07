// Package assets は、生成したメディアをハンドル経由で参照するためのメモリ内ストアです
package assets

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// HandlePrefix は、アセットハンドルの接頭辞です
const HandlePrefix = "asset://"

// ErrNotFound は、ハンドルが存在しないか失効している場合のエラーです
var ErrNotFound = errors.New("アセットが見つかりません")

// Store は、アセットをTTL付きで保持し、ビューごとに最新の1件だけを有効にします
type Store struct {
	cache  *cache.Cache
	mu     sync.Mutex
	views  map[string]string // ビュー → ハンドル
	owners map[string]string // ハンドル → ビュー
	logger *zap.Logger
}

// NewStore は新しいStoreインスタンスを作成します。ttlは解放漏れに対する上限です。
func NewStore(ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Store{
		cache:  cache.New(ttl, ttl/2),
		views:  make(map[string]string),
		owners: make(map[string]string),
		logger: logger.OrNop(log).Named("assets"),
	}
	// 期限切れ・手動削除のどちらでも呼ばれる
	s.cache.OnEvicted(s.forget)
	return s
}

// forget は、削除されたハンドルをビューの対応表から取り除きます
func (s *Store) forget(handle string, _ interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.owners[handle]
	if !ok {
		return
	}
	delete(s.owners, handle)
	if s.views[view] == handle {
		delete(s.views, view)
	}
}

// Put は、アセットを保存して新しいハンドルを返します
func (s *Store) Put(asset domain.Asset) string {
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	handle := HandlePrefix + uuid.NewString()
	s.cache.SetDefault(handle, asset)
	s.logger.Debug("アセットを保存しました",
		zap.String("handle", handle),
		zap.String("mime_type", asset.MimeType),
		zap.Int("bytes", len(asset.Data)))
	return handle
}

// Get は、ハンドルに対応するアセットを返します
func (s *Store) Get(handle string) (domain.Asset, error) {
	if !strings.HasPrefix(handle, HandlePrefix) {
		return domain.Asset{}, fmt.Errorf("不正なハンドルです %q: %w", handle, ErrNotFound)
	}
	v, ok := s.cache.Get(handle)
	if !ok {
		return domain.Asset{}, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}
	return v.(domain.Asset), nil
}

// Revoke は、ハンドルを失効させます。存在しないハンドルは無視します。
func (s *Store) Revoke(handle string) {
	if handle == "" {
		return
	}
	s.cache.Delete(handle)
	s.logger.Debug("アセットを解放しました", zap.String("handle", handle))
}

// Replace は、ビューのアセットを差し替え、以前のハンドルを失効させます
func (s *Store) Replace(view string, asset domain.Asset) string {
	handle := s.Put(asset)

	s.mu.Lock()
	previous := s.views[view]
	s.views[view] = handle
	s.owners[handle] = view
	s.mu.Unlock()

	s.Revoke(previous)
	return handle
}

// ClearView は、ビューのアセットを失効させます
func (s *Store) ClearView(view string) {
	s.mu.Lock()
	previous := s.views[view]
	delete(s.views, view)
	s.mu.Unlock()

	s.Revoke(previous)
}

// Len は、有効なアセットの件数を返します
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
