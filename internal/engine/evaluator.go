// Package engine evaluates quest requirements against on-chain activity and
// runs the periodic sweep that keeps progress rows current.
package engine

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/types"
)

// saucerSwapSlug is the only protocol the swap requirement kinds support.
const saucerSwapSlug = "saucerswap"

// Result is one evaluation outcome. Progress and Target are reported even
// when the requirement is not met.
type Result struct {
	Met      bool
	Progress float64
	Target   float64
}

// Subject is the wallet being evaluated plus the aggregates some requirement
// kinds read instead of querying the mirror node.
type Subject struct {
	Wallet      string
	SeasonLevel int64
}

// Evaluator dispatches requirement variants against mirror node activity.
// Evaluation never returns an error: a failed or empty mirror query reads as
// zero activity and yields a not-met result.
type Evaluator struct {
	mirror     *mirror.Client
	routerID   string
	lpTokenID  string
	lpDecimals int
	logger     *logging.Logger
}

// NewEvaluator creates an evaluator using the configured protocol entities.
func NewEvaluator(client *mirror.Client, cfg *config.MirrorConfig, logger *logging.Logger) *Evaluator {
	return &Evaluator{
		mirror:     client,
		routerID:   cfg.SwapRouterID,
		lpTokenID:  cfg.LPTokenID,
		lpDecimals: cfg.LPTokenDecimals,
		logger:     logger.WithField("component", "evaluator"),
	}
}

// Evaluate checks a single requirement for a subject within the activity
// window. The window has already been clipped to the quest's validity range.
func (e *Evaluator) Evaluate(ctx context.Context, req types.Requirement, subject Subject, window period.Window, now time.Time) Result {
	switch r := req.(type) {
	case types.SwapCountRequirement:
		return e.evaluateSwapCount(ctx, r, subject, window)
	case types.SwapVolumeRequirement:
		return e.evaluateSwapVolume(ctx, r, subject, window)
	case types.LPHoldDaysRequirement:
		return e.evaluateLPHoldDays(ctx, r, subject, now)
	case types.HbarTransferCountRequirement:
		return e.evaluateTransferCount(ctx, r, subject, window)
	case types.StakeMinAmountRequirement:
		return e.evaluateStake(ctx, r, subject)
	case types.SeasonLevelAtLeastRequirement:
		return Result{
			Met:      subject.SeasonLevel >= r.MinLevel,
			Progress: float64(subject.SeasonLevel),
			Target:   float64(r.MinLevel),
		}
	default:
		e.logger.WithFields(map[string]interface{}{
			"wallet": subject.Wallet,
			"type":   req.Type(),
		}).Warn("Unsupported requirement type, evaluating as not met")
		return Result{}
	}
}

func (e *Evaluator) evaluateSwapCount(ctx context.Context, r types.SwapCountRequirement, subject Subject, window period.Window) Result {
	target := float64(r.MinCount)
	if !e.supportsSwapProtocol(r.Protocol, subject.Wallet) {
		return Result{Target: target}
	}

	calls := e.mirror.SuccessfulContractCalls(ctx, subject.Wallet, e.routerID, window)
	progress := float64(len(calls))
	return Result{Met: progress >= target, Progress: progress, Target: target}
}

// evaluateSwapVolume sums the wallet's own HBAR movements on transactions
// that were successful router calls. Volume is the sum of absolute amounts in
// display units, an approximation of routed value that ignores token legs.
func (e *Evaluator) evaluateSwapVolume(ctx context.Context, r types.SwapVolumeRequirement, subject Subject, window period.Window) Result {
	target := r.MinVolume
	if !e.supportsSwapProtocol(r.Protocol, subject.Wallet) {
		return Result{Target: target}
	}

	calls := e.mirror.SuccessfulContractCalls(ctx, subject.Wallet, e.routerID, window)
	if len(calls) == 0 {
		return Result{Target: target}
	}

	callTimes := make(map[int64]bool, len(calls))
	for _, call := range calls {
		ts, err := mirror.ParseTimestamp(call.Timestamp)
		if err != nil {
			continue
		}
		callTimes[ts.UnixNano()] = true
	}

	var volume float64
	for _, transfer := range e.mirror.AccountTransfers(ctx, subject.Wallet, window) {
		if !callTimes[transfer.Timestamp.UnixNano()] {
			continue
		}
		amount := mirror.TinyToHbar(transfer.Amount)
		if amount < 0 {
			amount = -amount
		}
		volume += amount
	}

	return Result{Met: volume >= target, Progress: volume, Target: target}
}

// evaluateLPHoldDays approximates holding duration from the token association
// age. The mirror node does not expose balance history, so a wallet that
// dipped below the minimum mid-hold is not detected.
func (e *Evaluator) evaluateLPHoldDays(ctx context.Context, r types.LPHoldDaysRequirement, subject Subject, now time.Time) Result {
	target := float64(r.Days)
	if e.lpTokenID == "" {
		e.logger.WithField("wallet", subject.Wallet).Warn("LP token id not configured, evaluating as not met")
		return Result{Target: target}
	}

	balance := e.mirror.TokenBalanceOf(ctx, subject.Wallet, e.lpTokenID)
	if balance == nil || !balance.Associated {
		return Result{Target: target}
	}

	heldDays := 0.0
	if !balance.AssociatedAt.IsZero() {
		heldDays = now.Sub(balance.AssociatedAt).Hours() / 24
		if heldDays < 0 {
			heldDays = 0
		}
	}
	heldDays = float64(int64(heldDays))

	// The mirror node reports integer base units; MinAmount is in display
	// units, so convert before comparing.
	held := mirror.ToDisplay(big.NewInt(balance.Balance), e.lpDecimals)
	met := held >= r.MinAmount && heldDays >= target
	return Result{Met: met, Progress: heldDays, Target: target}
}

func (e *Evaluator) evaluateTransferCount(ctx context.Context, r types.HbarTransferCountRequirement, subject Subject, window period.Window) Result {
	target := float64(r.MinCount)

	var count int64
	for _, transfer := range e.mirror.AccountTransfers(ctx, subject.Wallet, window) {
		switch r.Direction {
		case types.DirectionIn:
			if transfer.Amount > 0 {
				count++
			}
		case types.DirectionOut:
			if transfer.Amount < 0 {
				count++
			}
		default:
			count++
		}
	}

	return Result{Met: float64(count) >= target, Progress: float64(count), Target: target}
}

// evaluateStake treats the full account balance as the staked amount when the
// account is staked to a node or proxy. The mirror node does not expose a
// separate staked balance.
func (e *Evaluator) evaluateStake(ctx context.Context, r types.StakeMinAmountRequirement, subject Subject) Result {
	target := r.MinAmount

	account := e.mirror.Account(ctx, subject.Wallet)
	if account == nil {
		return Result{Target: target}
	}

	staked := 0.0
	if account.StakedNodeID != nil || account.StakedAccount != "" {
		staked = mirror.TinyToHbar(account.BalanceTiny)
	}

	return Result{Met: staked >= target, Progress: staked, Target: target}
}

func (e *Evaluator) supportsSwapProtocol(protocol, wallet string) bool {
	if !strings.EqualFold(protocol, saucerSwapSlug) {
		e.logger.WithFields(map[string]interface{}{
			"wallet":   wallet,
			"protocol": protocol,
		}).Warn("Unsupported swap protocol, evaluating as not met")
		return false
	}
	if e.routerID == "" {
		e.logger.WithField("wallet", wallet).Warn("Swap router id not configured, evaluating as not met")
		return false
	}
	return true
}
