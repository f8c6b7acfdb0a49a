package dexscreener

// APIPairsResponse is the wire shape of the pairs-by-token endpoint.
type APIPairsResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []APIPair `json:"pairs"`
}

// APIPair is one trading pair as reported by the API. Prices arrive as
// decimal strings; liquidity and volume are plain JSON numbers.
type APIPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   APIToken `json:"baseToken"`
	QuoteToken  APIToken `json:"quoteToken"`
	PriceNative string   `json:"priceNative"`
	PriceUSD    string   `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
		M5  float64 `json:"m5"`
	} `json:"volume"`
	Txns struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
}

// APIToken identifies one side of a pair.
type APIToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}
