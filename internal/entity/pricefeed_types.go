package entity

// FeedTokenPair represents the response wrapper from the reference price
// feed. Some endpoints return a wrapped object, others a direct array of
// pairs; the client handles both.
type FeedTokenPair struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pair          *PairData  `json:"pair"`
	Pairs         []PairData `json:"pairs"`
}

// PairData contains detailed information about one trading pair.
type PairData struct {
	ChainID     string         `json:"chainId"`
	DexID       string         `json:"dexId"`
	URL         string         `json:"url"`
	PairAddress string         `json:"pairAddress"`
	BaseToken   FeedToken      `json:"baseToken"`
	QuoteToken  FeedToken      `json:"quoteToken"`
	PriceNative string         `json:"priceNative"`
	PriceUsd    string         `json:"priceUsd"`
	Liquidity   *FeedLiquidity `json:"liquidity"` // pointer to handle nulls
	Fdv         float64        `json:"fdv"`
	MarketCap   float64        `json:"marketCap"`
}

// FeedToken represents a token in a trading pair.
type FeedToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// FeedLiquidity represents the liquidity information for a pair.
type FeedLiquidity struct {
	Usd   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}
