package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/types"
	"github.com/stretchr/testify/assert"
)

const (
	testWallet   = "0xabcdef0123456789abcdef0123456789abcdef01"
	testRouterID = "0.0.3949434"
	testLPToken  = "0.0.1062795"
)

func newTestEvaluator(t *testing.T, handler http.Handler) (*Evaluator, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if handler != nil {
			handler.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &config.MirrorConfig{
		BaseURL:           server.URL,
		SwapRouterID:      testRouterID,
		LPTokenID:         testLPToken,
		LPTokenDecimals:   8,
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
		ResultLimit:       200,
	}
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	client := mirror.NewClient(cfg, logger)
	return NewEvaluator(client, cfg, logger), &requests
}

func contractResultsHandler(results string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contracts/results":
			fmt.Fprint(w, results)
		default:
			http.NotFound(w, r)
		}
	})
}

func TestEvaluateSwapCount(t *testing.T) {
	results := fmt.Sprintf(`{"results":[
		{"contract_id":"%s","result":"SUCCESS","timestamp":"1700000000.000000000","from":"%s"},
		{"contract_id":"%s","result":"SUCCESS","timestamp":"1700000100.000000000","from":"%s"},
		{"contract_id":"%s","result":"CONTRACT_REVERT_EXECUTED","timestamp":"1700000200.000000000","from":"%s"},
		{"contract_id":"0.0.999","result":"SUCCESS","timestamp":"1700000300.000000000","from":"%s"}
	]}`, testRouterID, testWallet, testRouterID, testWallet, testRouterID, testWallet, testWallet)

	evaluator, _ := newTestEvaluator(t, contractResultsHandler(results))

	result := evaluator.Evaluate(context.Background(),
		types.SwapCountRequirement{Protocol: "saucerswap", MinCount: 2},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.True(t, result.Met)
	assert.Equal(t, 2.0, result.Progress)
	assert.Equal(t, 2.0, result.Target)
}

func TestEvaluateSwapCountUnsupportedProtocol(t *testing.T) {
	evaluator, requests := newTestEvaluator(t, nil)

	result := evaluator.Evaluate(context.Background(),
		types.SwapCountRequirement{Protocol: "heliswap", MinCount: 1},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.False(t, result.Met)
	assert.Equal(t, 0.0, result.Progress)
	assert.Equal(t, 1.0, result.Target)
	assert.Equal(t, int64(0), requests.Load(), "unsupported protocol must not hit the mirror node")
}

func TestEvaluateSwapVolume(t *testing.T) {
	// One successful router call; the wallet moved 2500 HBAR out on it. A
	// second transfer on an unrelated transaction must not count.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contracts/results":
			fmt.Fprintf(w, `{"results":[
				{"contract_id":"%s","result":"SUCCESS","timestamp":"1700000000.000000000","from":"%s"}
			]}`, testRouterID, testWallet)
		case "/accounts/" + testWallet:
			fmt.Fprintf(w, `{"account":"%s","transactions":[
				{"consensus_timestamp":"1700000000.000000000","transfers":[
					{"account":"%s","amount":-250000000000},
					{"account":"0.0.3949434","amount":250000000000}
				]},
				{"consensus_timestamp":"1700009999.000000000","transfers":[
					{"account":"%s","amount":-100000000000}
				]}
			]}`, testWallet, testWallet, testWallet)
		default:
			http.NotFound(w, r)
		}
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.SwapVolumeRequirement{Protocol: "SaucerSwap", MinVolume: 2000},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.True(t, result.Met)
	assert.Equal(t, 2500.0, result.Progress)
}

func TestEvaluateTransferCountDirection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/"+testWallet {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"account":"%s","transactions":[
			{"consensus_timestamp":"1700000000.000000000","transfers":[{"account":"%s","amount":500}]},
			{"consensus_timestamp":"1700000100.000000000","transfers":[{"account":"%s","amount":700}]},
			{"consensus_timestamp":"1700000200.000000000","transfers":[{"account":"%s","amount":-300}]}
		]}`, testWallet, testWallet, testWallet, testWallet)
	})

	evaluator, _ := newTestEvaluator(t, handler)
	subject := Subject{Wallet: testWallet}

	in := evaluator.Evaluate(context.Background(),
		types.HbarTransferCountRequirement{MinCount: 2, Direction: types.DirectionIn},
		subject, period.Window{}, time.Now())
	assert.True(t, in.Met)
	assert.Equal(t, 2.0, in.Progress)

	out := evaluator.Evaluate(context.Background(),
		types.HbarTransferCountRequirement{MinCount: 2, Direction: types.DirectionOut},
		subject, period.Window{}, time.Now())
	assert.False(t, out.Met)
	assert.Equal(t, 1.0, out.Progress)

	both := evaluator.Evaluate(context.Background(),
		types.HbarTransferCountRequirement{MinCount: 3, Direction: types.DirectionBoth},
		subject, period.Window{}, time.Now())
	assert.True(t, both.Met)
}

func TestEvaluateLPHoldDays(t *testing.T) {
	now := time.Now().UTC()
	associatedAt := now.AddDate(0, 0, -40)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/"+testWallet+"/tokens" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"tokens":[
			{"token_id":"%s","balance":10000000000,"associated":true,"created_timestamp":"%s"},
			{"token_id":"0.0.42","balance":9999,"associated":true,"created_timestamp":"%s"}
		]}`, testLPToken, mirror.Timestamp(associatedAt), mirror.Timestamp(associatedAt))
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.LPHoldDaysRequirement{Protocol: "saucerswap", MinAmount: 50, Days: 30},
		Subject{Wallet: testWallet}, period.Window{}, now)

	assert.True(t, result.Met)
	assert.Equal(t, 40.0, result.Progress)
	assert.Equal(t, 30.0, result.Target)
}

func TestEvaluateLPHoldDaysInsufficientBalance(t *testing.T) {
	now := time.Now().UTC()
	// 45 tokens at 8 decimals. The raw base-unit figure is far above the
	// display-unit minimum, so this also pins the decimal conversion.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"tokens":[
			{"token_id":"%s","balance":4500000000,"associated":true,"created_timestamp":"%s"}
		]}`, testLPToken, mirror.Timestamp(now.AddDate(0, 0, -90)))
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.LPHoldDaysRequirement{Protocol: "saucerswap", MinAmount: 50, Days: 7},
		Subject{Wallet: testWallet}, period.Window{}, now)

	assert.False(t, result.Met)
	assert.Equal(t, 90.0, result.Progress)
}

func TestEvaluateStake(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"account":"%s","balance":{"balance":500000000000},"staked_node_id":3}`, testWallet)
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.StakeMinAmountRequirement{MinAmount: 1000},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.True(t, result.Met)
	assert.Equal(t, 5000.0, result.Progress)
}

func TestEvaluateStakeNotStaked(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"account":"%s","balance":{"balance":500000000000}}`, testWallet)
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.StakeMinAmountRequirement{MinAmount: 1000},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.False(t, result.Met)
	assert.Equal(t, 0.0, result.Progress)
}

func TestEvaluateSeasonLevel(t *testing.T) {
	evaluator, requests := newTestEvaluator(t, nil)

	met := evaluator.Evaluate(context.Background(),
		types.SeasonLevelAtLeastRequirement{MinLevel: 3},
		Subject{Wallet: testWallet, SeasonLevel: 5}, period.Window{}, time.Now())
	assert.True(t, met.Met)
	assert.Equal(t, 5.0, met.Progress)

	notMet := evaluator.Evaluate(context.Background(),
		types.SeasonLevelAtLeastRequirement{MinLevel: 3},
		Subject{Wallet: testWallet, SeasonLevel: 1}, period.Window{}, time.Now())
	assert.False(t, notMet.Met)

	assert.Equal(t, int64(0), requests.Load(), "season level must not hit the mirror node")
}

func TestEvaluateUnknownRequirement(t *testing.T) {
	evaluator, requests := newTestEvaluator(t, nil)

	result := evaluator.Evaluate(context.Background(),
		types.UnknownRequirement{Raw: "FUTURE_KIND"},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.False(t, result.Met)
	assert.Equal(t, 0.0, result.Progress)
	assert.Equal(t, int64(0), requests.Load())
}

func TestEvaluateMirrorFailureReadsAsNoActivity(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	evaluator, _ := newTestEvaluator(t, handler)

	result := evaluator.Evaluate(context.Background(),
		types.SwapCountRequirement{Protocol: "saucerswap", MinCount: 1},
		Subject{Wallet: testWallet}, period.Window{}, time.Now())

	assert.False(t, result.Met)
	assert.Equal(t, 0.0, result.Progress)
}
