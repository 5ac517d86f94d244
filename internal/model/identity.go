package model

// IdentityStatus is the lifecycle status of a resolved company.
type IdentityStatus string

const (
	IdentityActive     IdentityStatus = "active"
	IdentityRedirected IdentityStatus = "redirected"
	IdentityInactive   IdentityStatus = "inactive"
	IdentityStealth    IdentityStatus = "stealth"
	IdentityUnknown    IdentityStatus = "unknown"
)

// Valid reports whether s is one of the known statuses.
func (s IdentityStatus) Valid() bool {
	switch s {
	case IdentityActive, IdentityRedirected, IdentityInactive, IdentityStealth, IdentityUnknown:
		return true
	}
	return false
}

// EvidencePath names the strongest evidence an identity was resolved from.
type EvidencePath string

const (
	EvidenceVerifiedDomain  EvidencePath = "verified_domain"
	EvidenceRedirect        EvidencePath = "redirect"
	EvidenceAlternateName   EvidencePath = "alternate_name"
	EvidenceNameSearch      EvidencePath = "name_search"
	EvidenceSocialProfile   EvidencePath = "social_profile"
	EvidenceFounderProfiles EvidencePath = "founder_profiles"
	EvidenceNone            EvidencePath = "none"
)

// Valid reports whether p is one of the known evidence paths.
func (p EvidencePath) Valid() bool {
	switch p {
	case EvidenceVerifiedDomain, EvidenceRedirect, EvidenceAlternateName, EvidenceNameSearch,
		EvidenceSocialProfile, EvidenceFounderProfiles, EvidenceNone:
		return true
	}
	return false
}

// CompanyIdentity is the output of identity resolution.
type CompanyIdentity struct {
	CurrentDomain   string         `json:"current_domain,omitempty" yaml:"current_domain,omitempty"`
	Website         string         `json:"website,omitempty" yaml:"website,omitempty"`
	Status          IdentityStatus `json:"status" yaml:"status"`
	Confidence      float64        `json:"confidence" yaml:"confidence"`
	Reasoning       string         `json:"reasoning" yaml:"reasoning"`
	Sources         []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	EvidencePath    EvidencePath   `json:"evidence_path,omitempty" yaml:"evidence_path,omitempty"`
	RedirectFrom    string         `json:"redirect_from,omitempty" yaml:"redirect_from,omitempty"`
	CompanyLinkedIn string         `json:"company_linkedin,omitempty" yaml:"company_linkedin,omitempty"`
	FounderProfiles []string       `json:"founder_profiles,omitempty" yaml:"founder_profiles,omitempty"`
}

// UnknownIdentity is the zero-confidence result for a company nothing could
// be found about.
func UnknownIdentity(reason string) CompanyIdentity {
	return CompanyIdentity{
		Status:       IdentityUnknown,
		Confidence:   0,
		Reasoning:    reason,
		EvidencePath: EvidenceNone,
	}
}

// HasDomain reports whether a current domain was resolved.
func (i CompanyIdentity) HasDomain() bool {
	return i.CurrentDomain != ""
}

// AddSource appends a source URL unless it is empty or already present.
func (i *CompanyIdentity) AddSource(u string) {
	if u == "" {
		return
	}
	for _, s := range i.Sources {
		if s == u {
			return
		}
	}
	i.Sources = append(i.Sources, u)
}
