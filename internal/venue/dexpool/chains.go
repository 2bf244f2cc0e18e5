package dexpool

import (
	"os"

	apperrors "arb_monitor/pkg/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Chain carries the per-network constants needed to price a pool: the
// wrapped native token, the two recognized stables, the V2 factory, and the
// wrapped-native/USDT pool used for native pricing.
type Chain struct {
	Name             string
	RPCURL           string
	RPCEnvVar        string
	WrappedNative    common.Address
	USDT             common.Address
	USDC             common.Address
	Factory          common.Address
	NativeStablePool common.Address
}

var chains = map[string]Chain{
	"ethereum": {
		Name:             "ethereum",
		RPCURL:           "https://eth.llamarpc.com",
		RPCEnvVar:        "ETH_RPC_URL",
		WrappedNative:    common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		USDT:             common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		USDC:             common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Factory:          common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		NativeStablePool: common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"),
	},
	"bsc": {
		Name:             "bsc",
		RPCURL:           "https://bsc-dataseed.binance.org",
		RPCEnvVar:        "BSC_RPC_URL",
		WrappedNative:    common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		USDT:             common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
		USDC:             common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"),
		Factory:          common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"),
		NativeStablePool: common.HexToAddress("0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE"),
	},
	"polygon": {
		Name:             "polygon",
		RPCURL:           "https://polygon-rpc.com",
		RPCEnvVar:        "POLYGON_RPC_URL",
		WrappedNative:    common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
		USDT:             common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
		USDC:             common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		Factory:          common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"),
		NativeStablePool: common.HexToAddress("0x604229c960e5CACF2aaEAc8Be68Ac07BA9dF81c3"),
	},
	"avalanche": {
		Name:             "avalanche",
		RPCURL:           "https://api.avax.network/ext/bc/C/rpc",
		RPCEnvVar:        "AVAX_RPC_URL",
		WrappedNative:    common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7"),
		USDT:             common.HexToAddress("0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7"),
		USDC:             common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
		Factory:          common.HexToAddress("0x9Ad6C38BE94206cA50bb0d90783181662f0Cfa10"),
		NativeStablePool: common.HexToAddress("0xbb4646a764358ee93c2a9c4a147d5aDEd527ab73"),
	},
}

// ChainByName resolves a chain, applying the RPC env override when set.
func ChainByName(name string) (Chain, error) {
	chain, ok := chains[name]
	if !ok {
		return Chain{}, apperrors.ErrUnsupportedChain
	}
	if url := os.Getenv(chain.RPCEnvVar); url != "" {
		chain.RPCURL = url
	}
	return chain, nil
}

// SupportedChains lists the chain names the registry knows.
func SupportedChains() []string {
	out := make([]string, 0, len(chains))
	for name := range chains {
		out = append(out, name)
	}
	return out
}

// IsStable reports whether an address is one of the chain's recognized
// USD-pegged tokens. Comparison happens on normalized addresses.
func (c Chain) IsStable(addr common.Address) bool {
	return addr == c.USDT || addr == c.USDC
}

// IsWrappedNative reports whether an address is the chain's wrapped native
// token.
func (c Chain) IsWrappedNative(addr common.Address) bool {
	return addr == c.WrappedNative
}
