package chain

import (
	"math/big"
)

// weiPerToken assumes 18-decimal tokens, the common case for both LP
// tokens and the assets this desk trades.
var weiPerToken = new(big.Float).SetFloat64(1e18)

// ToWei converts a token amount into its 18-decimal wei value.
// Negative amounts clamp to zero.
func ToWei(amount float64) *big.Int {
	if amount <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Float).Mul(new(big.Float).SetFloat64(amount), weiPerToken)
	wei, _ := scaled.Int(nil)
	return wei
}

// FromWei converts an 18-decimal wei value into a token amount.
func FromWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerToken).Float64()
	return value
}
