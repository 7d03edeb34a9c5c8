package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/models"
)

// fakeStore is an in-memory record store keyed by date.
type fakeStore struct {
	records map[string]*models.DailyRecord
}

func (f *fakeStore) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	var out []models.DailySummary
	for date, rec := range f.records {
		out = append(out, models.DailySummary{Date: date, Submitted: rec.Diary.Submitted})
	}
	return out, nil
}

func (f *fakeStore) GetByDate(ctx context.Context, date string) (*models.DailyRecord, error) {
	rec, ok := f.records[date]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeStore) UpdateByDate(ctx context.Context, date string, upd models.DiaryUpdate) (*models.DailyRecord, error) {
	rec, ok := f.records[date]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	rec.Diary.Responses = upd.Responses
	if upd.Submitted != nil {
		rec.Diary.Submitted = *upd.Submitted
	}
	return rec.Clone(), nil
}

func testServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := &fakeStore{
		records: map[string]*models.DailyRecord{
			"2024-03-01": {
				Date: "2024-03-01",
				Diary: models.Diary{
					Questions: []models.Question{
						{ID: "notes", Type: models.QuestionTextarea, Label: "Anything else?"},
					},
					Responses: models.Responses{},
				},
			},
		},
	}
	return New(store), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_days":
		result, err = srv.listDays(ctx, req)
	case "read_day":
		result, err = srv.readDay(ctx, req)
	case "submit_diary":
		result, err = srv.submitDiary(ctx, req)
	case "get_diary_contract":
		result, err = srv.getDiaryContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListDays(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_days", map[string]interface{}{})
	if !strings.Contains(resultText(r), "2024-03-01") {
		t.Errorf("list_days = %q", resultText(r))
	}
}

func TestReadDay(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_day", map[string]interface{}{"date": "2024-03-01"})
	text := resultText(r)
	if !strings.Contains(text, `"notes"`) {
		t.Errorf("read_day missing questionnaire: %q", text)
	}
}

func TestReadDayMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_day", map[string]interface{}{"date": "2024-03-09"})
	if !r.IsError {
		t.Error("expected error for missing day")
	}
}

func TestSubmitDiary(t *testing.T) {
	srv, store := testServer(t)
	r := callTool(t, srv, "submit_diary", map[string]interface{}{
		"date":      "2024-03-01",
		"responses": `{"notes": "Quiet day."}`,
	})
	text := resultText(r)
	if !strings.HasPrefix(text, "submitted: 2024-03-01") {
		t.Errorf("submit result = %q", text)
	}
	if !store.records["2024-03-01"].Diary.Submitted {
		t.Error("record not marked submitted")
	}
	if got := store.records["2024-03-01"].Diary.Responses["notes"].Text; got != "Quiet day." {
		t.Errorf("stored notes = %q", got)
	}
}

func TestSubmitDiaryBadResponses(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "submit_diary", map[string]interface{}{
		"date":      "2024-03-01",
		"responses": `not json`,
	})
	if !r.IsError {
		t.Error("expected error for malformed responses")
	}
}

func TestGetDiaryContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_diary_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "Diary Response Contract") {
		t.Error("contract text missing")
	}
}
