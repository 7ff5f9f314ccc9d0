package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/platform/relayer"
)

const approveGasLimit = 100_000

const erc20ABI = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}
]`

// StandardPath is the self-funded settlement path: the trading wallet pays
// its own gas to grant the exchange a collateral allowance before an order.
type StandardPath struct {
	rpcURL string
	signer *crypto.Signer
	erc20  abi.ABI
}

// NewStandardPath creates the standard path against a Polygon JSON-RPC
// endpoint.
func NewStandardPath(rpcURL string, signer *crypto.Signer) (*StandardPath, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("executor/standard: parse erc20 abi: %w", err)
	}
	return &StandardPath{rpcURL: rpcURL, signer: signer, erc20: parsed}, nil
}

// EnsureAllowance checks the exchange's collateral allowance and sends an
// approve transaction when it is short of need (6-decimal USDC units). It
// returns the approval transaction hash, empty when no approval was needed.
func (p *StandardPath) EnsureAllowance(ctx context.Context, need *big.Int) (string, error) {
	client, err := ethclient.DialContext(ctx, p.rpcURL)
	if err != nil {
		return "", fmt.Errorf("executor/standard: dial rpc: %w", err)
	}
	defer client.Close()

	owner := p.signer.Address()
	token := common.HexToAddress(relayer.USDCeAddress)
	spender := common.HexToAddress(relayer.CTFExchangeAddress)

	current, err := p.allowance(ctx, client, token, owner, spender)
	if err != nil {
		return "", err
	}
	if current.Cmp(need) >= 0 {
		return "", nil
	}

	calldata, err := p.erc20.Pack("approve", spender, need)
	if err != nil {
		return "", fmt.Errorf("executor/standard: pack approve: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("executor/standard: nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("executor/standard: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), approveGasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(relayer.ChainID)), p.signer.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("executor/standard: sign approve: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("executor/standard: send approve: %w", err)
	}

	return signed.Hash().Hex(), nil
}

func (p *StandardPath) allowance(ctx context.Context, client *ethclient.Client, token, owner, spender common.Address) (*big.Int, error) {
	calldata, err := p.erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("executor/standard: pack allowance: %w", err)
	}

	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("executor/standard: call allowance: %w", err)
	}

	out, err := p.erc20.Unpack("allowance", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("executor/standard: decode allowance: %w", err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("executor/standard: unexpected allowance type %T", out[0])
	}
	return value, nil
}
