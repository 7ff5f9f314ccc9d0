package relayer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Protocol contract addresses on Polygon.
const (
	USDCeAddress       = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	CTFAddress         = "0x4d97dcd97ec945f40cf65f87097ace5ea0476045"
	CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
)

// ChainID is the Polygon mainnet chain ID.
const ChainID = 137

const contractsABI = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]},
	{"name":"setApprovalForAll","type":"function","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
	{"name":"redeemPositions","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"outputs":[]}
]`

var packer = mustParseABI(contractsABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("relayer: parsing contracts ABI: %v", err))
	}
	return parsed
}

// Transaction is one call in a relayed batch.
type Transaction struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// ApproveTx builds an ERC-20 approve(spender, amount) call against the given
// token contract. amount is in the token's smallest unit.
func ApproveTx(token, spender string, amount *big.Int) (Transaction, error) {
	data, err := packer.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("relayer: pack approve: %w", err)
	}
	return Transaction{
		To:    token,
		Data:  "0x" + common.Bytes2Hex(data),
		Value: "0",
	}, nil
}

// ApproveForAllTx builds the conditional-token setApprovalForAll call that
// lets the exchange move outcome tokens for sells.
func ApproveForAllTx(operator string) (Transaction, error) {
	data, err := packer.Pack("setApprovalForAll", common.HexToAddress(operator), true)
	if err != nil {
		return Transaction{}, fmt.Errorf("relayer: pack setApprovalForAll: %w", err)
	}
	return Transaction{
		To:    CTFAddress,
		Data:  "0x" + common.Bytes2Hex(data),
		Value: "0",
	}, nil
}

// RedeemTx builds the conditional-token redeemPositions call for a resolved
// binary market. Index sets 1 and 2 cover both outcomes.
func RedeemTx(conditionID string) (Transaction, error) {
	var condition [32]byte
	raw := common.FromHex(conditionID)
	if len(raw) != 32 {
		return Transaction{}, fmt.Errorf("relayer: condition id %q is not 32 bytes", conditionID)
	}
	copy(condition[:], raw)

	data, err := packer.Pack("redeemPositions",
		common.HexToAddress(USDCeAddress),
		[32]byte{},
		condition,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("relayer: pack redeemPositions: %w", err)
	}
	return Transaction{
		To:    CTFAddress,
		Data:  "0x" + common.Bytes2Hex(data),
		Value: "0",
	}, nil
}
