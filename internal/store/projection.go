package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trialscope/trialscope/internal/ctgov"
)

// projectionVersion identifies the current flattened-field schema.
// Bump it whenever project() learns a new field; Backfill re-projects
// every row stamped with an older version.
const projectionVersion = 3

// Record is one stored study: the verbatim payload plus the fields
// promoted out of it for indexed querying. Pointer fields distinguish
// "absent from the payload" from a zero value.
type Record struct {
	NCTID   string
	Payload []byte

	Title                 string
	Status                string
	Phase                 string
	StudyType             string
	Enrollment            *int
	StartDate             string
	CompletionDate        string
	PrimaryCompletionDate string
	LeadSponsor           string
	SponsorClass          string
	Allocation            string
	InterventionModel     string
	PrimaryPurpose        string
	Masking               string
	Sex                   string
	MinAgeMonths          *int
	MaxAgeMonths          *int
	AgeGroups             []string
	HealthyVolunteers     *bool
	HasResults            bool
	FDARegulatedDrug      *bool
	FDARegulatedDevice    *bool
	HasOversight          bool
	Keywords              []string
	Conditions            []string
	Locations             []ctgov.Location
	BriefSummary          string
	DetailedDescription   string

	ProjectionVersion int
	CreatedAt         string
	UpdatedAt         string
}

// Canonical normalizes an enumeration value for comparison and storage:
// upper-cased with internal spaces collapsed to underscores, so
// "Parallel Assignment" and "PARALLEL_ASSIGNMENT" compare equal.
// Used by both ingestion and the filter engine.
func Canonical(s string) string {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.Join(strings.Fields(v), "_")
	return v
}

// project derives every flattened field from a verbatim study payload.
// Pure: the same payload always yields the same Record, which is what
// makes Backfill safe to re-run.
func project(payload []byte) (*Record, error) {
	var study ctgov.Study
	if err := json.Unmarshal(payload, &study); err != nil {
		return nil, fmt.Errorf("parsing study payload: %w", err)
	}
	if study.NCTID() == "" {
		return nil, fmt.Errorf("study payload has no nctId")
	}

	rec := &Record{
		NCTID:             study.NCTID(),
		Payload:           payload,
		HasResults:        study.HasResults,
		ProjectionVersion: projectionVersion,
	}

	ps := study.ProtocolSection
	if ps == nil {
		return rec, nil
	}

	if id := ps.Identification; id != nil {
		rec.Title = id.BriefTitle
		if rec.Title == "" {
			rec.Title = id.OfficialTitle
		}
	}
	if st := ps.Status; st != nil {
		rec.Status = Canonical(st.OverallStatus)
		if st.StartDate != nil {
			rec.StartDate = st.StartDate.Date
		}
		if st.CompletionDate != nil {
			rec.CompletionDate = st.CompletionDate.Date
		}
		if st.PrimaryCompletionDate != nil {
			rec.PrimaryCompletionDate = st.PrimaryCompletionDate.Date
		}
	}
	if d := ps.Description; d != nil {
		rec.BriefSummary = d.BriefSummary
		rec.DetailedDescription = d.DetailedDescription
	}
	if cm := ps.Conditions; cm != nil {
		rec.Conditions = cm.Conditions
		rec.Keywords = cm.Keywords
	}
	if dm := ps.Design; dm != nil {
		rec.StudyType = Canonical(dm.StudyType)
		if len(dm.Phases) > 0 {
			rec.Phase = Canonical(strings.Join(dm.Phases, ", "))
		}
		if dm.Enrollment != nil {
			n := dm.Enrollment.Count
			rec.Enrollment = &n
		}
		if di := dm.DesignInfo; di != nil {
			rec.Allocation = Canonical(di.Allocation)
			rec.InterventionModel = Canonical(di.InterventionModel)
			rec.PrimaryPurpose = Canonical(di.PrimaryPurpose)
			if di.MaskingInfo != nil {
				rec.Masking = Canonical(di.MaskingInfo.Masking)
			}
		}
	}
	if el := ps.Eligibility; el != nil {
		rec.Sex = Canonical(el.Sex)
		rec.MinAgeMonths = ParseAgeMonths(el.MinimumAge)
		rec.MaxAgeMonths = ParseAgeMonths(el.MaximumAge)
		for _, g := range el.StdAges {
			rec.AgeGroups = append(rec.AgeGroups, Canonical(g))
		}
		rec.HealthyVolunteers = el.HealthyVolunteers
	}
	if sp := ps.Sponsor; sp != nil && sp.LeadSponsor != nil {
		rec.LeadSponsor = sp.LeadSponsor.Name
		rec.SponsorClass = Canonical(sp.LeadSponsor.Class)
	}
	if ov := ps.Oversight; ov != nil {
		rec.HasOversight = true
		rec.FDARegulatedDrug = ov.IsFDARegulatedDrug
		rec.FDARegulatedDevice = ov.IsFDARegulatedDevice
	}
	if cl := ps.ContactsLocations; cl != nil {
		rec.Locations = cl.Locations
	}

	return rec, nil
}

// ParseAgeMonths converts a registry age string ("18 Years", "6 Months",
// "2 Weeks") to whole months. Ages are compared numerically — string
// comparison of "9 Years" vs "65 Years" sorts the wrong way around.
// Returns nil when the value is absent or unparsable. Shared by the
// projection and the filter engine so both sides normalize identically,
// like Canonical.
func ParseAgeMonths(s string) *int {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return nil
	}

	var months int
	switch strings.ToLower(strings.TrimSuffix(fields[1], "s")) {
	case "year":
		months = n * 12
	case "month":
		months = n
	case "week":
		months = n / 4
	case "day", "hour", "minute":
		months = 0
	default:
		return nil
	}
	return &months
}
