package ctgov

import "encoding/json"

// Study is the decoded shape of one registry study record. Every nested
// module is optional in the source payload, so all of them are pointers
// and absence survives a decode/re-encode round trip.
//
// The verbatim payload is carried separately in Raw: the store persists
// that, never a re-serialization of this struct.
type Study struct {
	ProtocolSection *ProtocolSection `json:"protocolSection,omitempty"`
	HasResults      bool             `json:"hasResults"`

	// Raw is the study's verbatim JSON as received from the API.
	// Populated by the client, never part of the wire format itself.
	Raw json.RawMessage `json:"-"`
}

// ProtocolSection groups the study's descriptive modules.
type ProtocolSection struct {
	Identification    *IdentificationModule    `json:"identificationModule,omitempty"`
	Status            *StatusModule            `json:"statusModule,omitempty"`
	Description       *DescriptionModule       `json:"descriptionModule,omitempty"`
	Conditions        *ConditionsModule        `json:"conditionsModule,omitempty"`
	Design            *DesignModule            `json:"designModule,omitempty"`
	Eligibility       *EligibilityModule       `json:"eligibilityModule,omitempty"`
	Sponsor           *SponsorModule           `json:"sponsorCollaboratorsModule,omitempty"`
	Oversight         *OversightModule         `json:"oversightModule,omitempty"`
	ContactsLocations *ContactsLocationsModule `json:"contactsLocationsModule,omitempty"`
}

// IdentificationModule carries the stable external identifier.
type IdentificationModule struct {
	NCTID         string `json:"nctId"`
	BriefTitle    string `json:"briefTitle,omitempty"`
	OfficialTitle string `json:"officialTitle,omitempty"`
}

// StatusModule carries recruitment status and key dates.
type StatusModule struct {
	OverallStatus         string      `json:"overallStatus,omitempty"`
	StartDate             *DateStruct `json:"startDateStruct,omitempty"`
	CompletionDate        *DateStruct `json:"completionDateStruct,omitempty"`
	PrimaryCompletionDate *DateStruct `json:"primaryCompletionDateStruct,omitempty"`
}

// DateStruct is the registry's partial-date wrapper. Date is ISO
// formatted (YYYY-MM-DD or YYYY-MM), which sorts lexicographically in
// chronological order.
type DateStruct struct {
	Date string `json:"date,omitempty"`
	Type string `json:"type,omitempty"`
}

// DescriptionModule carries the free-text study descriptions.
type DescriptionModule struct {
	BriefSummary        string `json:"briefSummary,omitempty"`
	DetailedDescription string `json:"detailedDescription,omitempty"`
}

// ConditionsModule lists studied conditions and submitted keywords.
type ConditionsModule struct {
	Conditions []string `json:"conditions,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// DesignModule carries study type, phases, enrollment, and design info.
type DesignModule struct {
	StudyType  string          `json:"studyType,omitempty"`
	Phases     []string        `json:"phases,omitempty"`
	DesignInfo *DesignInfo     `json:"designInfo,omitempty"`
	Enrollment *EnrollmentInfo `json:"enrollmentInfo,omitempty"`
}

// DesignInfo carries allocation, intervention model, purpose, masking.
type DesignInfo struct {
	Allocation        string       `json:"allocation,omitempty"`
	InterventionModel string       `json:"interventionModel,omitempty"`
	PrimaryPurpose    string       `json:"primaryPurpose,omitempty"`
	MaskingInfo       *MaskingInfo `json:"maskingInfo,omitempty"`
}

// MaskingInfo carries the masking level.
type MaskingInfo struct {
	Masking string `json:"masking,omitempty"`
}

// EnrollmentInfo carries the enrollment count.
type EnrollmentInfo struct {
	Count int    `json:"count"`
	Type  string `json:"type,omitempty"`
}

// EligibilityModule carries participant eligibility attributes.
// Ages are strings with a unit suffix, e.g. "18 Years" or "6 Months".
type EligibilityModule struct {
	Sex               string   `json:"sex,omitempty"`
	MinimumAge        string   `json:"minimumAge,omitempty"`
	MaximumAge        string   `json:"maximumAge,omitempty"`
	StdAges           []string `json:"stdAges,omitempty"`
	HealthyVolunteers *bool    `json:"healthyVolunteers,omitempty"`
}

// SponsorModule carries the lead sponsor.
type SponsorModule struct {
	LeadSponsor *Sponsor `json:"leadSponsor,omitempty"`
}

// Sponsor is one sponsoring organization.
type Sponsor struct {
	Name  string `json:"name,omitempty"`
	Class string `json:"class,omitempty"`
}

// OversightModule carries regulatory oversight flags. The whole module
// is frequently absent; callers must distinguish "absent" from "false".
type OversightModule struct {
	IsFDARegulatedDrug   *bool `json:"isFdaRegulatedDrug,omitempty"`
	IsFDARegulatedDevice *bool `json:"isFdaRegulatedDevice,omitempty"`
}

// ContactsLocationsModule lists study sites.
type ContactsLocationsModule struct {
	Locations []Location `json:"locations,omitempty"`
}

// Location is one study site.
type Location struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

// NCTID returns the study's external identifier, or "" if the
// identification module is missing.
func (s *Study) NCTID() string {
	if s.ProtocolSection == nil || s.ProtocolSection.Identification == nil {
		return ""
	}
	return s.ProtocolSection.Identification.NCTID
}

// SearchParams are the caller-supplied query dimensions for one search.
// Zero-value fields are omitted from the request.
type SearchParams struct {
	Condition string
	Terms     string
	Location  string
	Status    string
	PageSize  int
	PageToken string
}

// Map returns the params as a flat string map, excluding pagination
// state. Used for order-independent cache keying and session storage.
func (p SearchParams) Map() map[string]string {
	m := map[string]string{}
	if p.Condition != "" {
		m["condition"] = p.Condition
	}
	if p.Terms != "" {
		m["terms"] = p.Terms
	}
	if p.Location != "" {
		m["location"] = p.Location
	}
	if p.Status != "" {
		m["status"] = p.Status
	}
	return m
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Studies       []Study
	NextPageToken string
	TotalCount    int
}

// wireSearchResponse mirrors the API's page envelope. Studies are kept
// raw so each one can be preserved verbatim.
type wireSearchResponse struct {
	Studies       []json.RawMessage `json:"studies"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
	TotalCount    int               `json:"totalCount,omitempty"`
}
