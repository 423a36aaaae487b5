// Package mirror provides a read-only client for the Hedera mirror node REST
// API. It issues filtered, time-windowed queries and normalizes the paginated
// JSON into typed records.
//
// Query failures degrade to empty results by design: the evaluator must treat
// "no data" and "query failed" identically, so a flaky mirror node slows a
// sweep down instead of aborting it. This is a documented limitation, not a
// crash path.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/retry"
	"golang.org/x/time/rate"
)

// maxResultLimit is the mirror node's hard cap on results per query.
const maxResultLimit = 200

// Client queries the Hedera mirror node REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	resultLimit int
	logger      *logging.Logger
}

// NewClient creates a mirror node client from configuration.
func NewClient(cfg *config.MirrorConfig, logger *logging.Logger) *Client {
	limit := cfg.ResultLimit
	if limit <= 0 || limit > maxResultLimit {
		limit = maxResultLimit
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		resultLimit: limit,
		logger:      logger.WithField("component", "mirror"),
	}
}

// ContractResult is a normalized contract call record.
type ContractResult struct {
	ContractID string `json:"contract_id"`
	Result     string `json:"result"`
	Timestamp  string `json:"timestamp"`
	From       string `json:"from"`
}

// Transfer is a single HBAR movement relative to the queried wallet.
// Amount is in tinybars; positive means the wallet received funds.
type Transfer struct {
	Account   string
	Amount    int64
	Timestamp time.Time
}

// TokenBalance is a token association snapshot for a wallet.
type TokenBalance struct {
	TokenID      string
	Balance      int64
	Associated   bool
	AssociatedAt time.Time
}

// AccountInfo is the subset of the account endpoint used for stake checks.
type AccountInfo struct {
	Account       string
	BalanceTiny   int64
	StakedNodeID  *int64
	StakedAccount string
}

// SuccessfulContractCalls returns the wallet's successful calls to the given
// contract within the window. The contract-id and status filters are applied
// client-side; the mirror query itself is scoped by sender and timestamp.
func (c *Client) SuccessfulContractCalls(ctx context.Context, wallet, contractID string, w period.Window) []ContractResult {
	wallet = NormalizeWallet(wallet)

	params := url.Values{}
	params.Set("from", wallet)
	params.Set("order", "desc")
	params.Set("limit", strconv.Itoa(c.resultLimit))
	addWindowParams(params, w)

	var payload struct {
		Results []ContractResult `json:"results"`
	}
	if !c.getJSON(ctx, "/contracts/results", params, &payload) {
		return nil
	}

	filtered := make([]ContractResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.ContractID == contractID && r.Result == "SUCCESS" {
			filtered = append(filtered, r)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"wallet":   wallet,
		"contract": contractID,
		"matches":  len(filtered),
	}).Debug("Fetched contract results")

	return filtered
}

// AccountTransfers returns the wallet's own HBAR transfer entries within the
// window. Zero-amount entries are excluded.
func (c *Client) AccountTransfers(ctx context.Context, wallet string, w period.Window) []Transfer {
	wallet = NormalizeWallet(wallet)

	params := url.Values{}
	params.Set("transactions", "true")
	params.Set("order", "desc")
	params.Set("limit", strconv.Itoa(c.resultLimit))
	addWindowParams(params, w)

	var payload struct {
		Account      string `json:"account"`
		Transactions []struct {
			EntityID           string `json:"entity_id"`
			ConsensusTimestamp string `json:"consensus_timestamp"`
			Transfers          []struct {
				Account string `json:"account"`
				Amount  int64  `json:"amount"`
			} `json:"transfers"`
		} `json:"transactions"`
	}
	if !c.getJSON(ctx, "/accounts/"+url.PathEscape(wallet), params, &payload) {
		return nil
	}

	var transfers []Transfer
	for _, tx := range payload.Transactions {
		ts, err := ParseTimestamp(tx.ConsensusTimestamp)
		if err != nil {
			continue
		}
		if !w.Contains(ts) {
			continue
		}
		for _, tr := range tx.Transfers {
			if tr.Account != payload.Account || tr.Amount == 0 {
				continue
			}
			transfers = append(transfers, Transfer{
				Account:   tr.Account,
				Amount:    tr.Amount,
				Timestamp: ts,
			})
		}
	}
	return transfers
}

// TokenBalanceOf returns the wallet's association record for tokenID, or nil
// when the token is not associated (or the query failed).
func (c *Client) TokenBalanceOf(ctx context.Context, wallet, tokenID string) *TokenBalance {
	wallet = NormalizeWallet(wallet)

	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.resultLimit))

	var payload struct {
		Tokens []struct {
			TokenID          string `json:"token_id"`
			Balance          int64  `json:"balance"`
			Associated       bool   `json:"associated"`
			CreatedTimestamp string `json:"created_timestamp"`
		} `json:"tokens"`
	}
	if !c.getJSON(ctx, "/accounts/"+url.PathEscape(wallet)+"/tokens", params, &payload) {
		return nil
	}

	for _, tok := range payload.Tokens {
		if tok.TokenID != tokenID {
			continue
		}
		ts, err := ParseTimestamp(tok.CreatedTimestamp)
		if err != nil {
			ts = time.Time{}
		}
		return &TokenBalance{
			TokenID:      tok.TokenID,
			Balance:      tok.Balance,
			Associated:   tok.Associated,
			AssociatedAt: ts,
		}
	}
	return nil
}

// Account returns basic account info, or nil on failure.
func (c *Client) Account(ctx context.Context, wallet string) *AccountInfo {
	wallet = NormalizeWallet(wallet)

	var payload struct {
		Account string `json:"account"`
		Balance struct {
			Balance int64 `json:"balance"`
		} `json:"balance"`
		StakedNodeID    *int64 `json:"staked_node_id"`
		StakedAccountID string `json:"staked_account_id"`
	}
	if !c.getJSON(ctx, "/accounts/"+url.PathEscape(wallet), url.Values{}, &payload) {
		return nil
	}

	return &AccountInfo{
		Account:       payload.Account,
		BalanceTiny:   payload.Balance.Balance,
		StakedNodeID:  payload.StakedNodeID,
		StakedAccount: payload.StakedAccountID,
	}
}

// getJSON performs a rate-limited GET and decodes the response. It returns
// false when the query failed for any reason; callers surface that as an
// empty result.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) bool {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":   reqURL,
			"error": err.Error(),
		}).Error("Mirror node query failed, treating as empty result")
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":   reqURL,
			"error": err.Error(),
		}).Error("Failed to parse mirror node response, treating as empty result")
		return false
	}
	return true
}

// doRequest performs the HTTP GET with retry on transient failures
// (network errors, 429, 5xx). Other non-2xx statuses fail immediately.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	var body []byte
	var permErr error

	err := retry.WithBackoff(ctx, &retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateErr := fmt.Errorf("mirror node returned %d", resp.StatusCode)
			if after := resp.Header.Get("Retry-After"); after != "" {
				if seconds, convErr := strconv.Atoi(after); convErr == nil {
					return &retry.RetryAfterError{Delay: time.Duration(seconds) * time.Second, Err: rateErr}
				}
			}
			return rateErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("mirror node returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors (404 for unknown accounts, 400 for bad
			// filters) will not improve on retry.
			permErr = fmt.Errorf("mirror node returned %d", resp.StatusCode)
			return nil
		}

		body = data
		return nil
	})

	if permErr != nil {
		return nil, permErr
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func addWindowParams(params url.Values, w period.Window) {
	if !w.Start.IsZero() {
		params.Add("timestamp", "gte:"+Timestamp(w.Start))
	}
	if !w.End.IsZero() {
		params.Add("timestamp", "lt:"+Timestamp(w.End))
	}
}
