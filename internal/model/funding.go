package model

import "time"

// FundingFinding records what funding research concluded.
type FundingFinding string

const (
	FundingAnnounced    FundingFinding = "announced"
	FundingBootstrapped FundingFinding = "bootstrapped"
	FundingNotFound     FundingFinding = "not_found"
)

// Stage labels used when no round was announced.
const (
	StageBootstrapped = "Bootstrapped"
	StageUnknown      = "Unknown"
	StageNoPublicInfo = "No public funding information"
)

// FundingRound is a single announced round.
type FundingRound struct {
	AmountUSD    *float64   `json:"amount_usd,omitempty" yaml:"amount_usd,omitempty"`
	RoundType    string     `json:"round_type,omitempty" yaml:"round_type,omitempty"`
	AnnouncedOn  *time.Time `json:"announced_on,omitempty" yaml:"announced_on,omitempty"`
	Investors    []string   `json:"investors,omitempty" yaml:"investors,omitempty"`
	LeadInvestor string     `json:"lead_investor,omitempty" yaml:"lead_investor,omitempty"`
	SourceURL    string     `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// FundingIntelligence is the output of funding research. A skipped stage has
// no FundingIntelligence at all; NotFound is a researched, empty result.
type FundingIntelligence struct {
	Stage           string         `json:"stage" yaml:"stage"`
	Finding         FundingFinding `json:"finding" yaml:"finding"`
	LatestRound     *FundingRound  `json:"latest_round,omitempty" yaml:"latest_round,omitempty"`
	TotalFundingUSD *float64       `json:"total_funding_usd,omitempty" yaml:"total_funding_usd,omitempty"`
	Confidence      float64        `json:"confidence" yaml:"confidence"`
	Reasoning       string         `json:"reasoning" yaml:"reasoning"`
	Sources         []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// Found reports whether any funding was announced.
func (f FundingIntelligence) Found() bool {
	return f.Finding == FundingAnnounced
}
