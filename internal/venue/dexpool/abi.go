package dexpool

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	apperrors "arb_monitor/pkg/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the slice of the RPC client the adapter needs.
// *ethclient.Client satisfies it; tests substitute fakes.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Minimal Uniswap-V2-compatible ABI subset.
var (
	pairABI = mustABI(`[
		{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"}
	]`)
	erc20ABI = mustABI(`[
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
	]`)
	factoryABI = mustABI(`[
		{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"type":"function"}
	]`)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func viewCall(ctx context.Context, caller ContractCaller, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	results, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// PoolMeta is the immutable part of a pool: its token addresses and their
// decimals. Fetched once per pool and cached.
type PoolMeta struct {
	Token0    common.Address
	Token1    common.Address
	Decimals0 uint8
	Decimals1 uint8
}

func fetchPoolMeta(ctx context.Context, caller ContractCaller, pool common.Address) (PoolMeta, error) {
	var meta PoolMeta

	out, err := viewCall(ctx, caller, pool, pairABI, "token0")
	if err != nil {
		return meta, err
	}
	meta.Token0 = out[0].(common.Address)

	out, err = viewCall(ctx, caller, pool, pairABI, "token1")
	if err != nil {
		return meta, err
	}
	meta.Token1 = out[0].(common.Address)

	out, err = viewCall(ctx, caller, meta.Token0, erc20ABI, "decimals")
	if err != nil {
		return meta, err
	}
	meta.Decimals0 = out[0].(uint8)

	out, err = viewCall(ctx, caller, meta.Token1, erc20ABI, "decimals")
	if err != nil {
		return meta, err
	}
	meta.Decimals1 = out[0].(uint8)

	return meta, nil
}

func fetchReserves(ctx context.Context, caller ContractCaller, pool common.Address) (*big.Int, *big.Int, error) {
	out, err := viewCall(ctx, caller, pool, pairABI, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// FindPool asks the chain's factory for a pool pairing the token with USDT,
// then USDC, then the wrapped native. A zero address from getPair means no
// pool exists for that pair.
func FindPool(ctx context.Context, caller ContractCaller, chain Chain, token common.Address) (common.Address, error) {
	for _, quote := range []common.Address{chain.USDT, chain.USDC, chain.WrappedNative} {
		out, err := viewCall(ctx, caller, chain.Factory, factoryABI, "getPair", token, quote)
		if err != nil {
			return common.Address{}, err
		}
		pair := out[0].(common.Address)
		if pair != (common.Address{}) {
			return pair, nil
		}
	}
	return common.Address{}, apperrors.ErrPoolNotFound
}
