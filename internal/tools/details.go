package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/store"
	"github.com/trialscope/trialscope/internal/trials"
)

// DetailsTool handles the get_study_details MCP tool.
type DetailsTool struct {
	service *trials.Service
}

// NewDetailsTool creates a DetailsTool.
func NewDetailsTool(service *trials.Service) *DetailsTool {
	return &DetailsTool{service: service}
}

// Definition returns the MCP tool definition for get_study_details.
func (t *DetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_study_details",
		mcp.WithDescription(
			"Fetch the full details of one study by NCT identifier. "+
				"Served from the local store when possible; otherwise fetched from the "+
				"registry and stored for future lookups.",
		),
		mcp.WithString("nct_id",
			mcp.Required(),
			mcp.Description("The study's NCT identifier, e.g. NCT04267848"),
		),
	)
}

// Handle processes the get_study_details tool call.
func (t *DetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nctID := strings.TrimSpace(req.GetString("nct_id", ""))
	if nctID == "" {
		return mcp.NewToolResultError("'nct_id' is required"), nil
	}

	rec, err := t.service.GetDetails(ctx, nctID)
	if errors.Is(err, trials.ErrStudyNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No study with id %q exists locally or in the registry.", nctID,
		)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatDetails(rec)), nil
}

func formatDetails(rec *store.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s — %s\n\n", rec.NCTID, rec.Title)

	writeField := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-20s %s\n", label+":", value)
		}
	}
	writeField("Status", rec.Status)
	writeField("Phase", rec.Phase)
	writeField("Study type", rec.StudyType)
	if rec.Enrollment != nil {
		fmt.Fprintf(&b, "%-20s %d\n", "Enrollment:", *rec.Enrollment)
	}
	writeField("Start date", rec.StartDate)
	writeField("Completion date", rec.CompletionDate)
	writeField("Lead sponsor", rec.LeadSponsor)
	writeField("Sponsor class", rec.SponsorClass)
	writeField("Allocation", rec.Allocation)
	writeField("Intervention model", rec.InterventionModel)
	writeField("Primary purpose", rec.PrimaryPurpose)
	writeField("Masking", rec.Masking)
	writeField("Sex", rec.Sex)
	writeField("Age groups", strings.Join(rec.AgeGroups, ", "))
	if rec.HealthyVolunteers != nil {
		fmt.Fprintf(&b, "%-20s %t\n", "Healthy volunteers:", *rec.HealthyVolunteers)
	}
	fmt.Fprintf(&b, "%-20s %t\n", "Has results:", rec.HasResults)
	writeField("Conditions", strings.Join(rec.Conditions, ", "))
	writeField("Keywords", strings.Join(rec.Keywords, ", "))

	if len(rec.Locations) > 0 {
		b.WriteString("\nLocations:\n")
		max := len(rec.Locations)
		if max > 10 {
			max = 10
		}
		for _, l := range rec.Locations[:max] {
			parts := []string{}
			for _, p := range []string{l.Facility, l.City, l.State, l.Country} {
				if p != "" {
					parts = append(parts, p)
				}
			}
			fmt.Fprintf(&b, "  - %s\n", strings.Join(parts, ", "))
		}
		if len(rec.Locations) > max {
			fmt.Fprintf(&b, "  ... and %d more\n", len(rec.Locations)-max)
		}
	}

	if rec.BriefSummary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", store.Truncate(rec.BriefSummary, 1500))
	}

	return b.String()
}
