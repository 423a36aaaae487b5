package types

import (
	"encoding/json"
	"fmt"
)

// Requirement is a closed tagged union of the conditions a wallet's on-chain
// activity must satisfy to complete a quest. Requirements are stored as JSON
// with a "type" discriminator and decoded into one of the concrete variants
// below. Unknown discriminators decode to UnknownRequirement instead of
// failing, so a new quest type rolled out ahead of the engine never aborts a
// sweep.
type Requirement interface {
	// Type returns the wire discriminator for this requirement kind.
	Type() string
}

// SwapVolumeRequirement requires a minimum swap volume (in display units)
// routed through a protocol's router within the evaluation window.
type SwapVolumeRequirement struct {
	Protocol  string  `json:"protocol"`
	MinVolume float64 `json:"minVolume"`
	Token     string  `json:"token,omitempty"`
}

func (SwapVolumeRequirement) Type() string { return "SWAP_VOLUME" }

// SwapCountRequirement requires a minimum number of successful router calls
// within the evaluation window.
type SwapCountRequirement struct {
	Protocol string `json:"protocol"`
	MinCount int64  `json:"minCount"`
}

func (SwapCountRequirement) Type() string { return "SWAP_COUNT" }

// LPHoldDaysRequirement requires holding at least MinAmount of a protocol's
// LP token for at least Days days.
type LPHoldDaysRequirement struct {
	Protocol  string  `json:"protocol"`
	MinAmount float64 `json:"minAmount"`
	Days      int64   `json:"days"`
}

func (LPHoldDaysRequirement) Type() string { return "LP_HOLD_DAYS" }

// HbarTransferCountRequirement requires a minimum number of HBAR transfers in
// the given direction within the evaluation window.
type HbarTransferCountRequirement struct {
	MinCount  int64             `json:"minCount"`
	Direction TransferDirection `json:"direction"`
}

func (HbarTransferCountRequirement) Type() string { return "HBAR_TRANSFER_COUNT" }

// StakeMinAmountRequirement requires a minimum staked HBAR balance.
type StakeMinAmountRequirement struct {
	MinAmount float64 `json:"minAmount"`
}

func (StakeMinAmountRequirement) Type() string { return "STAKE_MIN_AMOUNT" }

// SeasonLevelAtLeastRequirement requires the user's current season level to
// reach MinLevel. Evaluated from the user aggregate, no mirror query.
type SeasonLevelAtLeastRequirement struct {
	MinLevel int64 `json:"minLevel"`
}

func (SeasonLevelAtLeastRequirement) Type() string { return "SEASON_LEVEL_AT_LEAST" }

// UnknownRequirement is the fallthrough variant for discriminators this
// engine does not understand. It always evaluates to not-met.
type UnknownRequirement struct {
	Raw string `json:"-"`
}

func (r UnknownRequirement) Type() string { return r.Raw }

// DecodeRequirement parses a stored requirement payload. It returns an error
// only for malformed JSON; an unsupported "type" value yields
// UnknownRequirement.
func DecodeRequirement(data []byte) (Requirement, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse requirement: %w", err)
	}

	switch head.Type {
	case "SWAP_VOLUME":
		var r SwapVolumeRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse SWAP_VOLUME requirement: %w", err)
		}
		return r, nil
	case "SWAP_COUNT":
		var r SwapCountRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse SWAP_COUNT requirement: %w", err)
		}
		return r, nil
	case "LP_HOLD_DAYS":
		var r LPHoldDaysRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse LP_HOLD_DAYS requirement: %w", err)
		}
		return r, nil
	case "HBAR_TRANSFER_COUNT":
		var r HbarTransferCountRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse HBAR_TRANSFER_COUNT requirement: %w", err)
		}
		if r.Direction == "" {
			r.Direction = DirectionBoth
		}
		return r, nil
	case "STAKE_MIN_AMOUNT":
		var r StakeMinAmountRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse STAKE_MIN_AMOUNT requirement: %w", err)
		}
		return r, nil
	case "SEASON_LEVEL_AT_LEAST":
		var r SeasonLevelAtLeastRequirement
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse SEASON_LEVEL_AT_LEAST requirement: %w", err)
		}
		return r, nil
	default:
		return UnknownRequirement{Raw: head.Type}, nil
	}
}

// EncodeRequirement serializes a requirement with its "type" discriminator.
func EncodeRequirement(r Requirement) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requirement: %w", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to rewrap requirement: %w", err)
	}
	fields["type"] = r.Type()
	return json.Marshal(fields)
}
