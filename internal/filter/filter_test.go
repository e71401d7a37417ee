package filter_test

import (
	"testing"

	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/filter"
	"github.com/trialscope/trialscope/internal/store"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

// testRecord builds a fully populated record; tests override what they
// care about.
func testRecord(id string) store.Record {
	return store.Record{
		NCTID:             id,
		Title:             "Test Study",
		Status:            "RECRUITING",
		Phase:             "PHASE2",
		StudyType:         "INTERVENTIONAL",
		Enrollment:        intPtr(100),
		StartDate:         "2024-01-15",
		CompletionDate:    "2026-06-30",
		LeadSponsor:       "Acme Pharma",
		SponsorClass:      "INDUSTRY",
		Allocation:        "RANDOMIZED",
		InterventionModel: "PARALLEL_ASSIGNMENT",
		PrimaryPurpose:    "TREATMENT",
		Masking:           "DOUBLE",
		Sex:               "ALL",
		MinAgeMonths:      intPtr(18 * 12),
		MaxAgeMonths:      intPtr(65 * 12),
		AgeGroups:         []string{"ADULT", "OLDER_ADULT"},
		HealthyVolunteers: boolPtr(false),
		HasResults:        true,
		FDARegulatedDrug:  boolPtr(true),
		HasOversight:      true,
		Keywords:          []string{"cardiology", "heart failure"},
		Conditions:        []string{"Heart Failure"},
		Locations: []ctgov.Location{
			{Facility: "General Hospital", City: "Boston", State: "Massachusetts", Country: "United States"},
		},
	}
}

// ─── Matches: general behavior ───────────────────────────────────────────────

func TestMatches_EmptyCriteria(t *testing.T) {
	rec := testRecord("NCT1")
	if !filter.Matches(&rec, filter.Criteria{}) {
		t.Error("empty criteria must match every record")
	}
	bare := store.Record{NCTID: "NCT2"}
	if !filter.Matches(&bare, filter.Criteria{}) {
		t.Error("empty criteria must match a bare record too")
	}
}

func TestFilter_PreservesOrderAndIsIdempotent(t *testing.T) {
	records := []store.Record{testRecord("NCT1"), testRecord("NCT2"), testRecord("NCT3")}
	records[1].Status = "COMPLETED"

	c := filter.Criteria{Status: strPtr("recruiting")}
	once := filter.Filter(records, c)
	if len(once) != 2 || once[0].NCTID != "NCT1" || once[1].NCTID != "NCT3" {
		t.Fatalf("first pass = %v", ids(once))
	}

	twice := filter.Filter(once, c)
	if len(twice) != len(once) {
		t.Errorf("second pass changed the result: %v", ids(twice))
	}
}

func ids(records []store.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.NCTID
	}
	return out
}

// ─── Enumerations ────────────────────────────────────────────────────────────

func TestMatches_EnumNormalization(t *testing.T) {
	rec := testRecord("NCT1")

	// Spelled the way a human would type them, not the canonical form.
	cases := []filter.Criteria{
		{Status: strPtr("Recruiting")},
		{Phase: strPtr("phase2")},
		{InterventionModel: strPtr("Parallel Assignment")},
		{Allocation: strPtr("  randomized ")},
		{SponsorClass: strPtr("industry")},
	}
	for i, c := range cases {
		if !filter.Matches(&rec, c) {
			t.Errorf("case %d: expected match after normalization", i)
		}
	}

	if filter.Matches(&rec, filter.Criteria{Status: strPtr("Completed")}) {
		t.Error("wrong enum value must not match")
	}
}

func TestMatches_EnumAgainstEmptyRecordField(t *testing.T) {
	rec := testRecord("NCT1")
	rec.Phase = ""
	if filter.Matches(&rec, filter.Criteria{Phase: strPtr("PHASE2")}) {
		t.Error("record without a phase must not match a phase criterion")
	}
}

// ─── Boolean flags ───────────────────────────────────────────────────────────

func TestMatches_HealthyVolunteers(t *testing.T) {
	rec := testRecord("NCT1")
	if !filter.Matches(&rec, filter.Criteria{HealthyVolunteers: boolPtr(false)}) {
		t.Error("expected match on equal flag")
	}
	if filter.Matches(&rec, filter.Criteria{HealthyVolunteers: boolPtr(true)}) {
		t.Error("expected mismatch on opposite flag")
	}

	rec.HealthyVolunteers = nil
	if filter.Matches(&rec, filter.Criteria{HealthyVolunteers: boolPtr(false)}) {
		t.Error("unreported flag must fail closed")
	}
}

func TestMatches_HasResults(t *testing.T) {
	rec := testRecord("NCT1")
	if !filter.Matches(&rec, filter.Criteria{HasResults: boolPtr(true)}) {
		t.Error("expected match")
	}
	if filter.Matches(&rec, filter.Criteria{HasResults: boolPtr(false)}) {
		t.Error("expected mismatch")
	}
}

func TestMatches_FDARegulated(t *testing.T) {
	rec := testRecord("NCT1")
	if !filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(true)}) {
		t.Error("drug-regulated study must match fdaRegulated=true")
	}
	if filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(false)}) {
		t.Error("drug-regulated study must not match fdaRegulated=false")
	}

	rec.FDARegulatedDrug = boolPtr(false)
	rec.FDARegulatedDevice = boolPtr(true)
	if !filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(true)}) {
		t.Error("device regulation alone must satisfy fdaRegulated=true")
	}

	rec.FDARegulatedDevice = boolPtr(false)
	if !filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(false)}) {
		t.Error("explicitly unregulated study must match fdaRegulated=false")
	}
}

func TestMatches_FDARegulatedFailsClosedWithoutOversight(t *testing.T) {
	rec := testRecord("NCT1")
	rec.HasOversight = false
	rec.FDARegulatedDrug = nil
	rec.FDARegulatedDevice = nil

	// Never-reported oversight excludes the record for BOTH polarities:
	// absence of the module is not evidence either way.
	if filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(true)}) {
		t.Error("no oversight data: must not match fdaRegulated=true")
	}
	if filter.Matches(&rec, filter.Criteria{FDARegulated: boolPtr(false)}) {
		t.Error("no oversight data: must not match fdaRegulated=false")
	}

	// But when the criterion is unset, the record is included.
	if !filter.Matches(&rec, filter.Criteria{}) {
		t.Error("no oversight data must not exclude the record by default")
	}
}

// ─── Substring containment ───────────────────────────────────────────────────

func TestMatches_LocationSubstrings(t *testing.T) {
	rec := testRecord("NCT1")

	if !filter.Matches(&rec, filter.Criteria{Country: strPtr("united")}) {
		t.Error("case-insensitive country substring must match")
	}
	if !filter.Matches(&rec, filter.Criteria{State: strPtr("massachusetts")}) {
		t.Error("state substring must match")
	}
	if !filter.Matches(&rec, filter.Criteria{City: strPtr("BOSTON")}) {
		t.Error("city substring must match")
	}
	if filter.Matches(&rec, filter.Criteria{Country: strPtr("France")}) {
		t.Error("absent country must not match")
	}

	rec.Locations = nil
	if filter.Matches(&rec, filter.Criteria{Country: strPtr("united")}) {
		t.Error("record without locations must fail closed")
	}
}

func TestMatches_KeywordAndCondition(t *testing.T) {
	rec := testRecord("NCT1")
	if !filter.Matches(&rec, filter.Criteria{Keyword: strPtr("heart")}) {
		t.Error("keyword substring must match")
	}
	if !filter.Matches(&rec, filter.Criteria{Condition: strPtr("failure")}) {
		t.Error("condition substring must match")
	}
	if filter.Matches(&rec, filter.Criteria{Condition: strPtr("diabetes")}) {
		t.Error("absent condition must not match")
	}
}

// ─── Numeric and date ranges ─────────────────────────────────────────────────

func TestMatches_EnrollmentRange(t *testing.T) {
	rec := testRecord("NCT1") // enrollment 100

	if !filter.Matches(&rec, filter.Criteria{MinEnrollment: intPtr(100), MaxEnrollment: intPtr(100)}) {
		t.Error("bounds are inclusive")
	}
	if filter.Matches(&rec, filter.Criteria{MinEnrollment: intPtr(101)}) {
		t.Error("below min must not match")
	}
	if filter.Matches(&rec, filter.Criteria{MaxEnrollment: intPtr(99)}) {
		t.Error("above max must not match")
	}

	rec.Enrollment = nil
	if filter.Matches(&rec, filter.Criteria{MinEnrollment: intPtr(1)}) {
		t.Error("missing enrollment must fail closed")
	}
}

func TestMatches_DateBounds(t *testing.T) {
	rec := testRecord("NCT1") // start 2024-01-15, completion 2026-06-30

	if !filter.Matches(&rec, filter.Criteria{
		StartDateAfter:       strPtr("2024-01-01"),
		StartDateBefore:      strPtr("2024-12-31"),
		CompletionDateBefore: strPtr("2027-01-01"),
	}) {
		t.Error("dates inside bounds must match")
	}
	if filter.Matches(&rec, filter.Criteria{StartDateAfter: strPtr("2025-01-01")}) {
		t.Error("start before bound must not match")
	}
	if !filter.Matches(&rec, filter.Criteria{StartDateAfter: strPtr("2024-01-15")}) {
		t.Error("bound equal to the date is inclusive")
	}

	rec.StartDate = ""
	if filter.Matches(&rec, filter.Criteria{StartDateAfter: strPtr("2020-01-01")}) {
		t.Error("missing date must fail closed")
	}
}

// ─── Ages ────────────────────────────────────────────────────────────────────

func TestMatches_AgeBoundsCompareNumerically(t *testing.T) {
	rec := testRecord("NCT1")
	rec.MinAgeMonths = intPtr(9 * 12)
	rec.MaxAgeMonths = intPtr(17 * 12)

	// Lexicographically "9 Years" > "65 Years"; numerically it is far
	// below. The numeric comparison must win.
	if filter.Matches(&rec, filter.Criteria{MinAge: strPtr("65 Years")}) {
		t.Error("study admitting 9-year-olds must not satisfy minAge 65 Years")
	}
	if !filter.Matches(&rec, filter.Criteria{MinAge: strPtr("6 Months")}) {
		t.Error("minAge 6 Months is below the study's minimum")
	}
	if !filter.Matches(&rec, filter.Criteria{MaxAge: strPtr("18 Years")}) {
		t.Error("maxAge 18 Years is above the study's maximum")
	}

	rec.MinAgeMonths = nil
	if filter.Matches(&rec, filter.Criteria{MinAge: strPtr("18 Years")}) {
		t.Error("missing minimum age must fail closed")
	}
}

func TestMatches_AgeGroupIntersection(t *testing.T) {
	rec := testRecord("NCT1") // ADULT, OLDER_ADULT

	if !filter.Matches(&rec, filter.Criteria{AgeGroups: []string{"child", "adult"}}) {
		t.Error("one overlapping group suffices")
	}
	if filter.Matches(&rec, filter.Criteria{AgeGroups: []string{"CHILD"}}) {
		t.Error("disjoint groups must not match")
	}

	rec.AgeGroups = nil
	if filter.Matches(&rec, filter.Criteria{AgeGroups: []string{"ADULT"}}) {
		t.Error("record without age groups must fail closed")
	}
}

// ─── Criteria ────────────────────────────────────────────────────────────────

func TestCriteria_IsEmpty(t *testing.T) {
	if !(filter.Criteria{}).IsEmpty() {
		t.Error("zero value must be empty")
	}
	if (filter.Criteria{Status: strPtr("RECRUITING")}).IsEmpty() {
		t.Error("populated criteria must not be empty")
	}
	if (filter.Criteria{AgeGroups: []string{"ADULT"}}).IsEmpty() {
		t.Error("age groups alone must count as a constraint")
	}
}
