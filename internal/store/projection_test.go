package store

import "testing"

func TestProject_FlattensAllModules(t *testing.T) {
	payload := []byte(`{
		"protocolSection": {
			"identificationModule": {"nctId": "NCT01234567", "briefTitle": "Brief", "officialTitle": "Official"},
			"statusModule": {
				"overallStatus": "Active, not recruiting",
				"startDateStruct": {"date": "2024-03-01"},
				"completionDateStruct": {"date": "2026-09"}
			},
			"descriptionModule": {"briefSummary": "Summary.", "detailedDescription": "Detail."},
			"conditionsModule": {"conditions": ["Asthma"], "keywords": ["inhaler"]},
			"designModule": {
				"studyType": "Interventional",
				"phases": ["PHASE2", "PHASE3"],
				"enrollmentInfo": {"count": 240},
				"designInfo": {
					"allocation": "Randomized",
					"interventionModel": "Parallel Assignment",
					"primaryPurpose": "Treatment",
					"maskingInfo": {"masking": "Double"}
				}
			},
			"eligibilityModule": {
				"sex": "All",
				"minimumAge": "18 Years",
				"maximumAge": "65 Years",
				"stdAges": ["Adult", "Older Adult"],
				"healthyVolunteers": false
			},
			"sponsorCollaboratorsModule": {"leadSponsor": {"name": "Acme Pharma", "class": "Industry"}},
			"oversightModule": {"isFdaRegulatedDrug": true},
			"contactsLocationsModule": {"locations": [
				{"facility": "General Hospital", "city": "Boston", "state": "Massachusetts", "country": "United States"}
			]}
		},
		"hasResults": true
	}`)

	rec, err := project(payload)
	if err != nil {
		t.Fatalf("project() error: %v", err)
	}

	if rec.NCTID != "NCT01234567" {
		t.Errorf("NCTID = %q", rec.NCTID)
	}
	if rec.Title != "Brief" {
		t.Errorf("Title = %q, want briefTitle preferred", rec.Title)
	}
	if rec.Status != "ACTIVE,_NOT_RECRUITING" {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.StartDate != "2024-03-01" || rec.CompletionDate != "2026-09" {
		t.Errorf("dates = %q / %q", rec.StartDate, rec.CompletionDate)
	}
	if rec.Phase != "PHASE2,_PHASE3" {
		t.Errorf("Phase = %q", rec.Phase)
	}
	if rec.Enrollment == nil || *rec.Enrollment != 240 {
		t.Errorf("Enrollment = %v", rec.Enrollment)
	}
	if rec.Allocation != "RANDOMIZED" || rec.InterventionModel != "PARALLEL_ASSIGNMENT" {
		t.Errorf("design = %q / %q", rec.Allocation, rec.InterventionModel)
	}
	if rec.Masking != "DOUBLE" {
		t.Errorf("Masking = %q", rec.Masking)
	}
	if rec.MinAgeMonths == nil || *rec.MinAgeMonths != 216 {
		t.Errorf("MinAgeMonths = %v, want 216", rec.MinAgeMonths)
	}
	if rec.MaxAgeMonths == nil || *rec.MaxAgeMonths != 780 {
		t.Errorf("MaxAgeMonths = %v, want 780", rec.MaxAgeMonths)
	}
	if len(rec.AgeGroups) != 2 || rec.AgeGroups[0] != "ADULT" || rec.AgeGroups[1] != "OLDER_ADULT" {
		t.Errorf("AgeGroups = %v", rec.AgeGroups)
	}
	if rec.HealthyVolunteers == nil || *rec.HealthyVolunteers {
		t.Errorf("HealthyVolunteers = %v", rec.HealthyVolunteers)
	}
	if !rec.HasResults {
		t.Error("HasResults = false")
	}
	if rec.LeadSponsor != "Acme Pharma" || rec.SponsorClass != "INDUSTRY" {
		t.Errorf("sponsor = %q / %q", rec.LeadSponsor, rec.SponsorClass)
	}
	if !rec.HasOversight {
		t.Error("HasOversight = false, want true when oversight module present")
	}
	if rec.FDARegulatedDrug == nil || !*rec.FDARegulatedDrug {
		t.Errorf("FDARegulatedDrug = %v", rec.FDARegulatedDrug)
	}
	if rec.FDARegulatedDevice != nil {
		t.Errorf("FDARegulatedDevice = %v, want nil when absent", rec.FDARegulatedDevice)
	}
	if len(rec.Locations) != 1 || rec.Locations[0].Country != "United States" {
		t.Errorf("Locations = %v", rec.Locations)
	}
	if rec.ProjectionVersion != projectionVersion {
		t.Errorf("ProjectionVersion = %d", rec.ProjectionVersion)
	}
}

func TestProject_MissingModulesLeaveZeroValues(t *testing.T) {
	payload := []byte(`{
		"protocolSection": {
			"identificationModule": {"nctId": "NCT01234567", "officialTitle": "Only Official"}
		}
	}`)

	rec, err := project(payload)
	if err != nil {
		t.Fatalf("project() error: %v", err)
	}
	if rec.Title != "Only Official" {
		t.Errorf("Title = %q, want officialTitle fallback", rec.Title)
	}
	if rec.HasOversight {
		t.Error("HasOversight = true, want false when module absent")
	}
	if rec.Enrollment != nil || rec.HealthyVolunteers != nil {
		t.Error("absent optional fields must stay nil")
	}
	if rec.MinAgeMonths != nil || rec.MaxAgeMonths != nil {
		t.Error("absent ages must stay nil")
	}
}

func TestProject_IsDeterministic(t *testing.T) {
	payload := []byte(`{
		"protocolSection": {
			"identificationModule": {"nctId": "NCT01234567", "briefTitle": "Repeatable"},
			"eligibilityModule": {"minimumAge": "6 Months"}
		}
	}`)

	a, err := project(payload)
	if err != nil {
		t.Fatal(err)
	}
	b, err := project(payload)
	if err != nil {
		t.Fatal(err)
	}
	if a.Title != b.Title || *a.MinAgeMonths != *b.MinAgeMonths {
		t.Error("same payload projected differently")
	}
}

func TestProject_Errors(t *testing.T) {
	if _, err := project([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := project([]byte(`{"protocolSection": {}}`)); err == nil {
		t.Error("expected error for payload without nctId")
	}
}

func TestParseAgeMonths(t *testing.T) {
	// Both the projection and the filter engine depend on this one
	// helper; its table is the contract for both sides.
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"18 Years", 216, true},
		{"1 Year", 12, true},
		{"6 Months", 6, true},
		{"8 Weeks", 2, true},
		{"3 Days", 0, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"eighteen Years", 0, false},
		{"-1 Years", 0, false},
	}
	for _, c := range cases {
		got := ParseAgeMonths(c.in)
		if c.ok {
			if got == nil || *got != c.want {
				t.Errorf("ParseAgeMonths(%q) = %v, want %d", c.in, got, c.want)
			}
		} else if got != nil {
			t.Errorf("ParseAgeMonths(%q) = %d, want nil", c.in, *got)
		}
	}
}

// Numeric comparison is the point of storing months: as strings,
// "9 Years" sorts after "65 Years".
func TestParseAgeMonths_OrdersNumerically(t *testing.T) {
	nine := ParseAgeMonths("9 Years")
	sixtyFive := ParseAgeMonths("65 Years")
	if nine == nil || sixtyFive == nil {
		t.Fatal("parse failed")
	}
	if !(*nine < *sixtyFive) {
		t.Errorf("9 Years (%d) should be less than 65 Years (%d)", *nine, *sixtyFive)
	}
}
