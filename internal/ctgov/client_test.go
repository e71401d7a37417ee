package ctgov_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/trialscope/trialscope/internal/ctgov"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func studyBody(nctID, title string) string {
	return fmt.Sprintf(`{
		"protocolSection": {
			"identificationModule": {"nctId": %q, "briefTitle": %q}
		}
	}`, nctID, title)
}

func TestSearch_BuildsQueryAndDecodes(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprintf(w, `{"studies": [%s], "totalCount": 1}`, studyBody("NCT1", "Found"))
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	resp, err := c.Search(t.Context(), ctgov.SearchParams{
		Condition: "asthma",
		Terms:     "inhaler",
		Location:  "Boston",
		Status:    "RECRUITING",
		PageSize:  25,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	wantParams := map[string]string{
		"query.cond":           "asthma",
		"query.term":           "inhaler",
		"query.locn":           "Boston",
		"filter.overallStatus": "RECRUITING",
		"pageSize":             "25",
	}
	for k, want := range wantParams {
		if got := gotQuery[k]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %s", k, got, want)
		}
	}

	if len(resp.Studies) != 1 {
		t.Fatalf("got %d studies", len(resp.Studies))
	}
	if resp.Studies[0].NCTID() != "NCT1" {
		t.Errorf("NCTID = %q", resp.Studies[0].NCTID())
	}
	if len(resp.Studies[0].Raw) == 0 {
		t.Error("verbatim payload not attached")
	}
	if resp.TotalCount != 1 {
		t.Errorf("TotalCount = %d", resp.TotalCount)
	}
}

func TestSearch_RejectsStudyWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"studies": [{"protocolSection": {}}]}`)
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	if _, err := c.Search(t.Context(), ctgov.SearchParams{Condition: "x"}); err == nil {
		t.Error("expected error for study without nctId")
	}
}

func TestSearchAll_FollowsPageTokens(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageToken") {
		case "":
			pages.Add(1)
			fmt.Fprintf(w, `{"studies": [%s], "nextPageToken": "page2"}`, studyBody("NCT1", "One"))
		case "page2":
			pages.Add(1)
			fmt.Fprintf(w, `{"studies": [%s]}`, studyBody("NCT2", "Two"))
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	var seen []string
	err := c.SearchAll(t.Context(), ctgov.SearchParams{Condition: "x"}, func(batch []ctgov.Study) error {
		for _, s := range batch {
			seen = append(seen, s.NCTID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("SearchAll() error: %v", err)
	}
	if pages.Load() != 2 {
		t.Errorf("fetched %d pages, want 2", pages.Load())
	}
	if len(seen) != 2 || seen[0] != "NCT1" || seen[1] != "NCT2" {
		t.Errorf("seen = %v", seen)
	}
}

func TestSearchAll_StopsWhenCallbackErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"studies": [%s], "nextPageToken": "more"}`, studyBody("NCT1", "One"))
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	stop := errors.New("stop")
	calls := 0
	err := c.SearchAll(t.Context(), ctgov.SearchParams{Condition: "x"}, func(batch []ctgov.Study) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("SearchAll() error = %v, want callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback invoked %d times after erroring", calls)
	}
}

func TestGetStudy_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies/NCT1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, studyBody("NCT1", "Single"))
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	study, err := c.GetStudy(t.Context(), "NCT1")
	if err != nil {
		t.Fatalf("GetStudy() error: %v", err)
	}
	if study.NCTID() != "NCT1" {
		t.Errorf("NCTID = %q", study.NCTID())
	}
	if len(study.Raw) == 0 {
		t.Error("verbatim payload not attached")
	}
}

func TestGetStudy_NotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	_, err := c.GetStudy(t.Context(), "NCT404")
	if !errors.Is(err, ctgov.ErrStudyNotFound) {
		t.Errorf("GetStudy() error = %v, want ErrStudyNotFound", err)
	}
	// Not-found is terminal, never retried.
	if calls.Load() != 1 {
		t.Errorf("registry hit %d times for a 404", calls.Load())
	}
}

func TestSearch_TransientFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"studies": [%s]}`, studyBody("NCT1", "Recovered"))
	}))
	defer srv.Close()

	c := ctgov.NewClient(srv.URL, testLogger())
	resp, err := c.Search(t.Context(), ctgov.SearchParams{Condition: "x"})
	if err != nil {
		t.Fatalf("Search() error after transient failure: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("registry hit %d times, want retry after 503", calls.Load())
	}
	if len(resp.Studies) != 1 {
		t.Errorf("got %d studies", len(resp.Studies))
	}
}
