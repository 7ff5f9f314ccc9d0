package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/relayer"
)

// RelaySubmitter is the slice of the relayer client the funds preparer
// needs: fire an operation and wait for its terminal state.
type RelaySubmitter interface {
	DeployAndWait(ctx context.Context) (relayer.TaskResult, error)
	ExecuteAndWait(ctx context.Context, txs []relayer.Transaction, description string) (relayer.TaskResult, error)
}

// AllowanceEnsurer is the standard gas path.
type AllowanceEnsurer interface {
	EnsureAllowance(ctx context.Context, need *big.Int) (string, error)
}

// RelayAdapter implements RelaySubmitter over the concrete relayer client.
type RelayAdapter struct {
	Client *relayer.Client
}

func (a RelayAdapter) DeployAndWait(ctx context.Context) (relayer.TaskResult, error) {
	task, err := a.Client.Deploy(ctx)
	if err != nil {
		return relayer.TaskResult{}, err
	}
	return task.Wait(ctx)
}

func (a RelayAdapter) ExecuteAndWait(ctx context.Context, txs []relayer.Transaction, description string) (relayer.TaskResult, error) {
	task, err := a.Client.Execute(ctx, txs, description)
	if err != nil {
		return relayer.TaskResult{}, err
	}
	return task.Wait(ctx)
}

// FundsPreparer runs the pre-order settlement step: gasless first through
// the relayer, transparently falling back to the self-funded path when the
// relayer is unavailable or rejects the wallet.
type FundsPreparer struct {
	log      *slog.Logger
	relay    RelaySubmitter   // nil when no builder credentials configured
	standard AllowanceEnsurer // nil when no RPC endpoint configured
}

// NewFundsPreparer wires the two settlement paths. Either may be nil.
func NewFundsPreparer(logger *slog.Logger, relay RelaySubmitter, standard AllowanceEnsurer) *FundsPreparer {
	return &FundsPreparer{
		log:      logger.With(slog.String("component", "funds")),
		relay:    relay,
		standard: standard,
	}
}

// Prepare grants the exchange whatever approval the order needs and
// reports which path served it. need is ceil(shares x limitPrice) dollars.
func (f *FundsPreparer) Prepare(ctx context.Context, side domain.OrderSide, limitPrice, shares float64) (txHash string, gasless bool, err error) {
	needUnits := new(big.Int).Mul(
		big.NewInt(int64(math.Ceil(shares*limitPrice))),
		big.NewInt(1_000_000),
	)

	if f.relay != nil {
		hash, gerr := f.prepareGasless(ctx, side, needUnits)
		if gerr == nil {
			return hash, true, nil
		}
		f.log.Warn("gasless settlement failed, falling back to standard path",
			slog.String("error", gerr.Error()))
	}

	if side == domain.OrderSideSell || f.standard == nil {
		// Sells rely on a standing conditional-token approval; there is
		// nothing for the standard path to grant per order.
		return "", false, nil
	}

	hash, serr := f.standard.EnsureAllowance(ctx, needUnits)
	if serr != nil {
		return "", false, fmt.Errorf("executor: ensure allowance: %w", serr)
	}
	return hash, false, nil
}

func (f *FundsPreparer) prepareGasless(ctx context.Context, side domain.OrderSide, needUnits *big.Int) (string, error) {
	if err := f.ensureDeployed(ctx); err != nil {
		return "", err
	}

	var (
		tx   relayer.Transaction
		desc string
		err  error
	)
	if side == domain.OrderSideBuy {
		tx, err = relayer.ApproveTx(relayer.USDCeAddress, relayer.CTFExchangeAddress, needUnits)
		desc = "Approve collateral for trading"
	} else {
		tx, err = relayer.ApproveForAllTx(relayer.CTFExchangeAddress)
		desc = "Approve outcome tokens for selling"
	}
	if err != nil {
		return "", err
	}

	result, err := f.relay.ExecuteAndWait(ctx, []relayer.Transaction{tx}, desc)
	if err != nil {
		return "", err
	}
	return result.TransactionHash, nil
}

// ensureDeployed makes sure the Safe proxy exists. The relayer reports an
// existing Safe as an error; that flavor counts as success.
func (f *FundsPreparer) ensureDeployed(ctx context.Context) error {
	_, err := f.relay.DeployAndWait(ctx)
	if err == nil || relayer.AlreadyDeployed(err) {
		return nil
	}
	return fmt.Errorf("deploy safe: %w", err)
}

// RedeemResolved claims winnings from a resolved market through the
// relayer. It is a no-op error when no relayer is configured.
func (f *FundsPreparer) RedeemResolved(ctx context.Context, conditionID string) (string, error) {
	if f.relay == nil {
		return "", fmt.Errorf("executor: redeem %s: no relayer configured", conditionID)
	}
	if err := f.ensureDeployed(ctx); err != nil {
		return "", err
	}

	tx, err := relayer.RedeemTx(conditionID)
	if err != nil {
		return "", err
	}
	result, err := f.relay.ExecuteAndWait(ctx, []relayer.Transaction{tx}, "Redeem positions")
	if err != nil {
		return "", fmt.Errorf("executor: redeem %s: %w", conditionID, err)
	}
	return result.TransactionHash, nil
}
