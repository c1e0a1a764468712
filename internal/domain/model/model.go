// Package model contains domain models passed between layers.
package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Attestation is a raw, timestamped forecast submitted by an address on a
// condition. Rows are owned by the ingestion subsystem; the scoring engine
// only reads them.
type Attestation struct {
	ID          string // ingestion-assigned id, ascending
	Attester    string // forecaster address
	ConditionID string
	Resolver    string // market resolver address
	Prediction  string // raw forecast encoding, normalized by the engine
	Time        int64  // unix seconds the forecast was made
}

// Condition is a binary-outcome question. Settlement arrives from an
// external indexer and may flip back (reorgs), so Settled is not sticky.
type Condition struct {
	ID            string
	EndTime       *int64 // unix seconds; nil until the market has an end
	Settled       bool
	ResolvedToYes bool
	Resolver      string
}

// AttestationScore is the derived scoring record, exactly one per
// attestation, keyed by AttestationID.
//
// ProbabilityFloat and ProbabilityD18 are both set or both nil; a
// normalization failure is total, not partial. ErrorSquared, Outcome and
// ScoredAt are owned by the aggregator and cleared together whenever the
// owning condition is found unsettled or non-binary during a rescore.
type AttestationScore struct {
	AttestationID    string
	Attester         string
	MarketAddress    string // condition resolver, lowercased
	MarketID         string // = ConditionID
	MadeAt           int64
	ProbabilityFloat *float64
	ProbabilityD18   *string // probability scaled by 1e18, decimal string
	ErrorSquared     *float64
	Outcome          *int // 0 or 1 once scored
	ScoredAt         *int64
	Used             bool // vestigial selection flag; never gates scoring
}

// AttesterMarketTwError is the per-(attester, market) horizon-weighted
// error aggregate, written only by the aggregator for settled binary
// markets with at least one qualifying pre-end forecast.
type AttesterMarketTwError struct {
	Attester      string
	MarketAddress string
	MarketID      string
	TwError       float64
}

// CanonicalAddress lowercases an address into the form used for keys.
// Well-formed hex addresses go through go-ethereum's checksum parser so
// that mixed-case inputs collapse to one key; anything else is lowercased
// as-is rather than rejected, since address validity is the ingestion
// subsystem's problem.
func CanonicalAddress(s string) string {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return strings.ToLower(common.HexToAddress(s).Hex())
	}
	return strings.ToLower(s)
}
