package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/filter"
	"github.com/trialscope/trialscope/internal/session"
	"github.com/trialscope/trialscope/internal/trials"
)

// RefineTool handles the refine_results MCP tool.
type RefineTool struct {
	service *trials.Service
}

// NewRefineTool creates a RefineTool.
func NewRefineTool(service *trials.Service) *RefineTool {
	return &RefineTool{service: service}
}

// Definition returns the MCP tool definition for refine_results.
func (t *RefineTool) Definition() mcp.Tool {
	return mcp.NewTool("refine_results",
		mcp.WithDescription(
			"Narrow a search session to the studies matching additional criteria. "+
				"Works entirely against the local store — no registry call. "+
				"Every criterion is optional; omitted criteria are unconstrained. "+
				"Each refinement replaces the session's result set, so counts only ever shrink.",
		),
		mcp.WithString("session_token",
			mcp.Required(),
			mcp.Description("Token returned by search_studies"),
		),
		mcp.WithString("status", mcp.Description("Overall status, e.g. RECRUITING")),
		mcp.WithString("phase", mcp.Description("Study phase, e.g. PHASE2")),
		mcp.WithString("study_type", mcp.Description("Study type, e.g. INTERVENTIONAL")),
		mcp.WithString("sex", mcp.Description("Eligible sex: ALL, FEMALE, or MALE")),
		mcp.WithString("allocation", mcp.Description("Design allocation, e.g. RANDOMIZED")),
		mcp.WithString("intervention_model", mcp.Description("Intervention model, e.g. PARALLEL_ASSIGNMENT")),
		mcp.WithString("primary_purpose", mcp.Description("Primary purpose, e.g. TREATMENT")),
		mcp.WithString("masking", mcp.Description("Masking level, e.g. DOUBLE")),
		mcp.WithString("sponsor_class", mcp.Description("Lead sponsor class, e.g. INDUSTRY or NIH")),
		mcp.WithBoolean("healthy_volunteers", mcp.Description("Whether the study accepts healthy volunteers")),
		mcp.WithBoolean("has_results", mcp.Description("Whether the study has posted results")),
		mcp.WithBoolean("fda_regulated", mcp.Description(
			"Whether the study is FDA-regulated as a drug or device. "+
				"Studies with no oversight data at all are excluded either way.")),
		mcp.WithString("country", mcp.Description("Study site country (substring match)")),
		mcp.WithString("state", mcp.Description("Study site state (substring match)")),
		mcp.WithString("city", mcp.Description("Study site city (substring match)")),
		mcp.WithString("keyword", mcp.Description("Submitted keyword (substring match)")),
		mcp.WithString("condition", mcp.Description("Studied condition (substring match)")),
		mcp.WithNumber("min_enrollment", mcp.Description("Minimum enrollment count (inclusive)")),
		mcp.WithNumber("max_enrollment", mcp.Description("Maximum enrollment count (inclusive)")),
		mcp.WithString("start_date_after", mcp.Description("Start date on or after, ISO format (YYYY-MM-DD)")),
		mcp.WithString("start_date_before", mcp.Description("Start date on or before, ISO format")),
		mcp.WithString("completion_date_after", mcp.Description("Completion date on or after, ISO format")),
		mcp.WithString("completion_date_before", mcp.Description("Completion date on or before, ISO format")),
		mcp.WithString("min_age", mcp.Description("Minimum eligible age, e.g. '18 Years'")),
		mcp.WithString("max_age", mcp.Description("Maximum eligible age, e.g. '65 Years'")),
		mcp.WithString("age_groups", mcp.Description("Comma-separated age groups (CHILD, ADULT, OLDER_ADULT); matches on intersection")),
	)
}

// Handle processes the refine_results tool call.
func (t *RefineTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := req.GetString("session_token", "")
	if token == "" {
		return mcp.NewToolResultError("'session_token' is required"), nil
	}

	criteria := filter.Criteria{
		Status:               strPtrArg(req, "status"),
		Phase:                strPtrArg(req, "phase"),
		StudyType:            strPtrArg(req, "study_type"),
		Sex:                  strPtrArg(req, "sex"),
		Allocation:           strPtrArg(req, "allocation"),
		InterventionModel:    strPtrArg(req, "intervention_model"),
		PrimaryPurpose:       strPtrArg(req, "primary_purpose"),
		Masking:              strPtrArg(req, "masking"),
		SponsorClass:         strPtrArg(req, "sponsor_class"),
		HealthyVolunteers:    boolPtrArg(req, "healthy_volunteers"),
		HasResults:           boolPtrArg(req, "has_results"),
		FDARegulated:         boolPtrArg(req, "fda_regulated"),
		Country:              strPtrArg(req, "country"),
		State:                strPtrArg(req, "state"),
		City:                 strPtrArg(req, "city"),
		Keyword:              strPtrArg(req, "keyword"),
		Condition:            strPtrArg(req, "condition"),
		MinEnrollment:        intPtrArg(req, "min_enrollment"),
		MaxEnrollment:        intPtrArg(req, "max_enrollment"),
		StartDateAfter:       strPtrArg(req, "start_date_after"),
		StartDateBefore:      strPtrArg(req, "start_date_before"),
		CompletionDateAfter:  strPtrArg(req, "completion_date_after"),
		CompletionDateBefore: strPtrArg(req, "completion_date_before"),
		MinAge:               strPtrArg(req, "min_age"),
		MaxAge:               strPtrArg(req, "max_age"),
		AgeGroups:            listArg(req, "age_groups"),
	}

	result, err := t.service.Refine(token, criteria)
	if errors.Is(err, session.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Session %q not found. It may never have existed — run search_studies to start a new one.", token,
		)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refine failed: %v", err)), nil
	}

	if result.NewCount == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No studies match these criteria (narrowed from %d to 0).\n"+
				"The session now holds an empty set — start a new search to widen again.",
			result.PreviousCount,
		)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Narrowed from %d to %d studies.\n\n", result.PreviousCount, result.NewCount)
	formatRecords(&b, result.Records, 10)

	return mcp.NewToolResultText(b.String()), nil
}
