package swap

// Asset identifies a fungible token type (e.g. "WETH", "USDC").
// The engine treats it as opaque; only emptiness is invalid.
type Asset string

func (a Asset) Valid() bool { return a != "" }
