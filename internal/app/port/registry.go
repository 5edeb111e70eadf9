package port

import "borrow_engine/internal/domain/entity"

// RegistryProvider serves the static asset catalogue.
type RegistryProvider interface {
	// AssetsForChain returns every registered asset descriptor for a chain.
	AssetsForChain(chainID uint64) []entity.AssetDescriptor

	// AssetBySymbol looks an asset up by (chainID, symbol).
	AssetBySymbol(chainID uint64, symbol string) (entity.AssetDescriptor, bool)
}
