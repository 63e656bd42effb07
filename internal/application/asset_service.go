package application

import (
	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// AssetService は、サービスが返したハンドルから生成物を取り出します
type AssetService struct {
	assets AssetStore
	logger *zap.Logger
}

// NewAssetService は新しいAssetServiceインスタンスを作成します
func NewAssetService(assets AssetStore, log *zap.Logger) *AssetService {
	return &AssetService{
		assets: assets,
		logger: logger.OrNop(log).Named("asset_service"),
	}
}

// Open は、ハンドルに対応するアセットを返します。失効済みのハンドルはEmptyOutputになります。
func (s *AssetService) Open(handle string) (domain.Asset, error) {
	asset, err := s.assets.Get(handle)
	if err != nil {
		s.logger.Warn("アセットを取得できません", zap.String("handle", handle), zap.Error(err))
		return domain.Asset{}, domain.NewGenerationError(domain.KindEmptyOutput, "OpenAsset", "生成物の保存期間が過ぎました。もう一度生成してください", err)
	}
	return asset, nil
}
