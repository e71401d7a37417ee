package export_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/export"
	"github.com/trialscope/trialscope/internal/store"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func testRecords() []store.Record {
	return []store.Record{
		{
			NCTID:             "NCT1",
			Payload:           []byte(`{"protocolSection":{"identificationModule":{"nctId":"NCT1"}}}`),
			Title:             "First Study",
			Status:            "RECRUITING",
			Phase:             "PHASE2",
			Enrollment:        intPtr(120),
			HealthyVolunteers: boolPtr(true),
			AgeGroups:         []string{"ADULT", "OLDER_ADULT"},
			Conditions:        []string{"Asthma"},
			Locations: []ctgov.Location{
				{City: "Boston", Country: "United States"},
				{City: "Lyon", Country: "France"},
				{City: "Paris", Country: "France"},
			},
		},
		{
			NCTID:   "NCT2",
			Payload: []byte(`{"protocolSection":{"identificationModule":{"nctId":"NCT2"}}}`),
			Title:   "Second Study",
		},
	}
}

func TestCSV_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := export.Write(&buf, "csv", testRecords()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(rows))
	}

	header := rows[0]
	if header[0] != "nct_id" || header[1] != "title" {
		t.Errorf("header = %v", header[:2])
	}

	first := rows[1]
	if first[0] != "NCT1" || first[1] != "First Study" {
		t.Errorf("first row = %v", first[:2])
	}
	if !strings.Contains(strings.Join(first, ","), "ADULT|OLDER_ADULT") {
		t.Error("age groups not pipe-joined")
	}
	// Countries are deduplicated.
	joined := strings.Join(first, ",")
	if strings.Count(joined, "France") != 1 {
		t.Errorf("countries not deduplicated: %s", joined)
	}

	// Absent optional fields serialize as empty, not zero.
	second := rows[2]
	for i, name := range header {
		if name == "enrollment" && second[i] != "" {
			t.Errorf("missing enrollment = %q, want empty", second[i])
		}
		if name == "healthy_volunteers" && second[i] != "" {
			t.Errorf("missing healthy_volunteers = %q, want empty", second[i])
		}
	}
}

func TestJSONL_WritesVerbatimPayloads(t *testing.T) {
	var buf bytes.Buffer
	if err := export.Write(&buf, "jsonl", testRecords()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != `{"protocolSection":{"identificationModule":{"nctId":"NCT1"}}}` {
		t.Errorf("line is not the verbatim payload: %s", lines[0])
	}
}

func TestWrite_FormatIsCaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	if err := export.Write(&buf, "CSV", nil); err != nil {
		t.Errorf("Write(CSV) error: %v", err)
	}
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := export.Write(&buf, "xml", nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}
