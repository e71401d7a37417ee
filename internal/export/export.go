// Package export serializes resolved study records to tabular and
// line-delimited formats. It receives fully resolved records from the
// session manager and owns nothing but the serialization.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/trialscope/trialscope/internal/store"
)

// Formats accepted by Write.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// Write serializes records in the given format.
func Write(w io.Writer, format string, records []store.Record) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return CSV(w, records)
	case FormatJSONL:
		return JSONL(w, records)
	default:
		return fmt.Errorf("export: unsupported format %q (want csv or jsonl)", format)
	}
}

// CSV writes one row per record covering the flattened columns.
func CSV(w io.Writer, records []store.Record) error {
	cw := csv.NewWriter(w)

	header := []string{
		"nct_id", "title", "status", "phase", "study_type", "enrollment",
		"start_date", "completion_date", "lead_sponsor", "sponsor_class",
		"allocation", "intervention_model", "primary_purpose", "masking",
		"sex", "age_groups", "healthy_volunteers", "has_results",
		"conditions", "countries",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.NCTID, rec.Title, rec.Status, rec.Phase, rec.StudyType,
			intField(rec.Enrollment),
			rec.StartDate, rec.CompletionDate,
			rec.LeadSponsor, rec.SponsorClass,
			rec.Allocation, rec.InterventionModel, rec.PrimaryPurpose,
			rec.Masking, rec.Sex,
			strings.Join(rec.AgeGroups, "|"),
			boolField(rec.HealthyVolunteers),
			strconv.FormatBool(rec.HasResults),
			strings.Join(rec.Conditions, "|"),
			strings.Join(countries(rec), "|"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row %s: %w", rec.NCTID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// JSONL writes each record's verbatim payload, one JSON object per line.
func JSONL(w io.Writer, records []store.Record) error {
	for _, rec := range records {
		if _, err := w.Write(rec.Payload); err != nil {
			return fmt.Errorf("export: write jsonl row %s: %w", rec.NCTID, err)
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("export: write jsonl row %s: %w", rec.NCTID, err)
		}
	}
	return nil
}

func intField(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func boolField(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func countries(rec store.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range rec.Locations {
		if l.Country == "" || seen[l.Country] {
			continue
		}
		seen[l.Country] = true
		out = append(out, l.Country)
	}
	return out
}
