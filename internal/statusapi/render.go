package statusapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// renderArg flattens decoded event arguments into display strings. The ABI
// decoder hands back a small set of Go types; anything unexpected falls
// through to fmt.
func renderArg(v interface{}) string {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case [32]byte:
		return common.BytesToHash(val[:]).Hex()
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}
