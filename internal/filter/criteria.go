// Package filter evaluates refinement criteria against study records.
//
// Evaluation is pure and stateless: every populated criteria field must
// hold for a record to match, and empty criteria match everything.
package filter

// Criteria is one refinement request. Every field is optional; a nil
// field means "no constraint on that dimension".
type Criteria struct {
	// Canonical-equality enumerations (case and separator insensitive).
	Status            *string `json:"status,omitempty"`
	Phase             *string `json:"phase,omitempty"`
	StudyType         *string `json:"studyType,omitempty"`
	Sex               *string `json:"sex,omitempty"`
	Allocation        *string `json:"allocation,omitempty"`
	InterventionModel *string `json:"interventionModel,omitempty"`
	PrimaryPurpose    *string `json:"primaryPurpose,omitempty"`
	Masking           *string `json:"masking,omitempty"`
	SponsorClass      *string `json:"sponsorClass,omitempty"`

	// Boolean flags. FDARegulated fails closed when the record carries
	// no oversight data at all.
	HealthyVolunteers *bool `json:"healthyVolunteers,omitempty"`
	HasResults        *bool `json:"hasResults,omitempty"`
	FDARegulated      *bool `json:"fdaRegulated,omitempty"`

	// Case-insensitive substring containment over collection fields.
	Country   *string `json:"country,omitempty"`
	State     *string `json:"state,omitempty"`
	City      *string `json:"city,omitempty"`
	Keyword   *string `json:"keyword,omitempty"`
	Condition *string `json:"condition,omitempty"`

	// Inclusive numeric ranges; records lacking the field fail closed.
	MinEnrollment *int `json:"minEnrollment,omitempty"`
	MaxEnrollment *int `json:"maxEnrollment,omitempty"`

	// ISO date bounds, compared lexicographically; missing record dates
	// fail closed.
	StartDateAfter       *string `json:"startDateAfter,omitempty"`
	StartDateBefore      *string `json:"startDateBefore,omitempty"`
	CompletionDateAfter  *string `json:"completionDateAfter,omitempty"`
	CompletionDateBefore *string `json:"completionDateBefore,omitempty"`

	// Age bounds as registry strings ("18 Years", "6 Months"). Parsed
	// to months via store.ParseAgeMonths and compared numerically.
	MinAge *string `json:"minAge,omitempty"`
	MaxAge *string `json:"maxAge,omitempty"`

	// Age-group intersection: at least one requested group must appear
	// in the record's own age-group list.
	AgeGroups []string `json:"ageGroups,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (c Criteria) IsEmpty() bool {
	return c.Status == nil && c.Phase == nil && c.StudyType == nil &&
		c.Sex == nil && c.Allocation == nil && c.InterventionModel == nil &&
		c.PrimaryPurpose == nil && c.Masking == nil && c.SponsorClass == nil &&
		c.HealthyVolunteers == nil && c.HasResults == nil && c.FDARegulated == nil &&
		c.Country == nil && c.State == nil && c.City == nil &&
		c.Keyword == nil && c.Condition == nil &&
		c.MinEnrollment == nil && c.MaxEnrollment == nil &&
		c.StartDateAfter == nil && c.StartDateBefore == nil &&
		c.CompletionDateAfter == nil && c.CompletionDateBefore == nil &&
		c.MinAge == nil && c.MaxAge == nil && len(c.AgeGroups) == 0
}
