package filter

import (
	"strings"

	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/store"
)

// Filter returns the records for which Matches holds, preserving order.
func Filter(records []store.Record, c Criteria) []store.Record {
	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		if Matches(&rec, c) {
			out = append(out, rec)
		}
	}
	return out
}

// Matches reports whether rec satisfies every populated field of c.
// Pure and side-effect-free; empty criteria match everything.
func Matches(rec *store.Record, c Criteria) bool {
	// Canonical-equality enumerations.
	if !enumEq(c.Status, rec.Status) ||
		!enumEq(c.Phase, rec.Phase) ||
		!enumEq(c.StudyType, rec.StudyType) ||
		!enumEq(c.Sex, rec.Sex) ||
		!enumEq(c.Allocation, rec.Allocation) ||
		!enumEq(c.InterventionModel, rec.InterventionModel) ||
		!enumEq(c.PrimaryPurpose, rec.PrimaryPurpose) ||
		!enumEq(c.Masking, rec.Masking) ||
		!enumEq(c.SponsorClass, rec.SponsorClass) {
		return false
	}

	// Boolean flags.
	if c.HealthyVolunteers != nil {
		if rec.HealthyVolunteers == nil || *rec.HealthyVolunteers != *c.HealthyVolunteers {
			return false
		}
	}
	if c.HasResults != nil && rec.HasResults != *c.HasResults {
		return false
	}
	if c.FDARegulated != nil {
		// Fail closed when the oversight module never appeared in the
		// payload: "never reported" is not the same as "false".
		if !rec.HasOversight {
			return false
		}
		regulated := (rec.FDARegulatedDrug != nil && *rec.FDARegulatedDrug) ||
			(rec.FDARegulatedDevice != nil && *rec.FDARegulatedDevice)
		if regulated != *c.FDARegulated {
			return false
		}
	}

	// Substring containment over collections.
	if c.Country != nil && !anyLocation(rec, *c.Country, func(l ctgov.Location) string { return l.Country }) {
		return false
	}
	if c.State != nil && !anyLocation(rec, *c.State, func(l ctgov.Location) string { return l.State }) {
		return false
	}
	if c.City != nil && !anyLocation(rec, *c.City, func(l ctgov.Location) string { return l.City }) {
		return false
	}
	if c.Keyword != nil && !anyContains(rec.Keywords, *c.Keyword) {
		return false
	}
	if c.Condition != nil && !anyContains(rec.Conditions, *c.Condition) {
		return false
	}

	// Enrollment range: fail closed when the record has no count.
	if c.MinEnrollment != nil || c.MaxEnrollment != nil {
		if rec.Enrollment == nil {
			return false
		}
		if c.MinEnrollment != nil && *rec.Enrollment < *c.MinEnrollment {
			return false
		}
		if c.MaxEnrollment != nil && *rec.Enrollment > *c.MaxEnrollment {
			return false
		}
	}

	// Date bounds: ISO date strings sort lexicographically in
	// chronological order. Missing record dates fail closed.
	if !dateAfter(rec.StartDate, c.StartDateAfter) ||
		!dateBefore(rec.StartDate, c.StartDateBefore) ||
		!dateAfter(rec.CompletionDate, c.CompletionDateAfter) ||
		!dateBefore(rec.CompletionDate, c.CompletionDateBefore) {
		return false
	}

	// Age bounds, compared in months. The criteria side is parsed with
	// the same helper the projection uses, so both sides round alike.
	if c.MinAge != nil {
		want := store.ParseAgeMonths(*c.MinAge)
		if want == nil || rec.MinAgeMonths == nil || *rec.MinAgeMonths < *want {
			return false
		}
	}
	if c.MaxAge != nil {
		want := store.ParseAgeMonths(*c.MaxAge)
		if want == nil || rec.MaxAgeMonths == nil || *rec.MaxAgeMonths > *want {
			return false
		}
	}

	// Age-group intersection.
	if len(c.AgeGroups) > 0 && !intersects(rec.AgeGroups, c.AgeGroups) {
		return false
	}

	return true
}

// enumEq compares a criteria enum against a stored (already canonical)
// value. Stored values are canonicalized at projection time; the
// criteria side is canonicalized here so both ingestion and filtering
// share one normalization.
func enumEq(want *string, stored string) bool {
	if want == nil {
		return true
	}
	return store.Canonical(*want) == stored
}

func anyLocation(rec *store.Record, query string, field func(ctgov.Location) string) bool {
	q := strings.ToLower(query)
	for _, l := range rec.Locations {
		if strings.Contains(strings.ToLower(field(l)), q) {
			return true
		}
	}
	return false
}

func anyContains(values []string, query string) bool {
	q := strings.ToLower(query)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func dateAfter(have string, bound *string) bool {
	if bound == nil {
		return true
	}
	return have != "" && have >= *bound
}

func dateBefore(have string, bound *string) bool {
	if bound == nil {
		return true
	}
	return have != "" && have <= *bound
}

func intersects(have, want []string) bool {
	for _, w := range want {
		cw := store.Canonical(w)
		for _, h := range have {
			if h == cw {
				return true
			}
		}
	}
	return false
}
