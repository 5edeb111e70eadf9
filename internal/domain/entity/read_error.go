package entity

// ReadError records a read-layer failure absorbed into the data model while
// computing a snapshot. Read errors never cross the aggregation boundary as
// Go errors; they are collected and reported alongside the snapshot.
type ReadError struct {
	AccountAddress string `json:"accountAddress,omitempty"`
	ChainID        string `json:"chainId,omitempty"`
	AssetSymbol    string `json:"assetSymbol,omitempty"`
	PTokenAddress  string `json:"pTokenAddress,omitempty"`
	Message        string `json:"message"`
}
