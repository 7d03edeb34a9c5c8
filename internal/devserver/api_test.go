package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"

	"github.com/perch/daybook/internal/models"
	"github.com/perch/daybook/internal/recordstore"
)

// testNow is 03:00 UTC, which is still the previous evening in New York.
var testNow = time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "daybook-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEnv(t *testing.T, policy EditPolicy, authToken string) (*DB, http.Handler) {
	t.Helper()
	db := testDB(t)
	svc := NewService(db, policy, time.UTC, WithClock(func() time.Time { return testNow }))
	enabled := authToken != ""
	router := NewRouter(svc, enabled, authToken, nil)
	return db, router
}

func seedRecord(t *testing.T, db *DB, date string, submitted bool) {
	t.Helper()
	rec := &models.DailyRecord{
		Date:      date,
		Dashboard: models.Dashboard{HasInteraction: true},
		Diary: models.Diary{
			Submitted:    submitted,
			Instructions: []string{"Answer every question you can."},
			Questions: []models.Question{
				{
					ID:      "mood",
					Type:    models.QuestionRadio,
					Label:   "How was the day?",
					Options: []string{"Good", "Hard"},
					Followups: []models.Followup{
						{
							Label:       "What made it hard?",
							ResponseKey: "mood_detail",
							ShowWhen:    models.ShowWhen{Operator: models.OpEquals, Value: models.StringList{"Hard"}},
						},
					},
				},
				{ID: "notes", Type: models.QuestionTextarea, Label: "Anything else?"},
			},
			Responses: models.Responses{},
		},
	}
	if err := db.UpsertRecord(rec, ""); err != nil {
		t.Fatalf("seed %s: %v", date, err)
	}
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListSummaries(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-02-28", true)
	seedRecord(t, db, "2024-03-01", false)
	seedRecord(t, db, "2024-03-02", false)

	w := doJSON(t, router, http.MethodGet, "/daily/summaries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Items []models.DailySummary `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(resp.Items))
	}
	// In UTC the clock reads 2024-03-02.
	byDate := map[string]models.DailySummary{}
	for _, s := range resp.Items {
		byDate[s.Date] = s
	}
	if !byDate["2024-03-02"].TodayBlueDot {
		t.Error("expected blue dot on 2024-03-02 in UTC")
	}
	if !byDate["2024-03-02"].DiaryEditable {
		t.Error("expected 2024-03-02 editable in UTC")
	}
	if byDate["2024-03-01"].DiaryEditable {
		t.Error("2024-03-01 should be closed in UTC")
	}
	if !byDate["2024-02-28"].Submitted {
		t.Error("2024-02-28 should be submitted")
	}
}

func TestListSummariesTimezoneShiftsToday(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-01", false)
	seedRecord(t, db, "2024-03-02", false)

	w := doJSON(t, router, http.MethodGet, "/daily/summaries?timezone=America/New_York", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Items []models.DailySummary `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	byDate := map[string]models.DailySummary{}
	for _, s := range resp.Items {
		byDate[s.Date] = s
	}
	// It is still 2024-03-01 in New York.
	if !byDate["2024-03-01"].TodayBlueDot {
		t.Error("expected blue dot on 2024-03-01 in New York")
	}
	if byDate["2024-03-02"].DiarySelectable {
		t.Error("2024-03-02 should not be selectable yet in New York")
	}
	if byDate["2024-03-02"].DiaryEditable {
		t.Error("2024-03-02 should not be editable yet in New York")
	}
}

func TestListSummariesUnknownTimezoneFallsBack(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", false)

	w := doJSON(t, router, http.MethodGet, "/daily/summaries?timezone=Not/AZone", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Items []models.DailySummary `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || !resp.Items[0].TodayBlueDot {
		t.Errorf("expected UTC fallback to mark 2024-03-02 as today, got %+v", resp.Items)
	}
}

func TestGetDay(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-01", false)

	w := doJSON(t, router, http.MethodGet, "/daily/2024-03-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rec models.DailyRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Date != "2024-03-01" || len(rec.Diary.Questions) != 2 {
		t.Errorf("unexpected record: %+v", rec)
	}

	if w := doJSON(t, router, http.MethodGet, "/daily/2024-03-15", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing day status = %d, want 404", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/daily/yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}

func TestUpdateDiary(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", false)

	submitted := true
	upd := models.DiaryUpdate{
		Responses: models.Responses{
			"mood":  models.TextAnswer("Good"),
			"notes": models.TextAnswer("Long walk in the park."),
			// Hidden while mood is not "Hard"; the server must drop it.
			"mood_detail": models.TextAnswer("stale"),
		},
		Submitted: &submitted,
	}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec models.DailyRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if !rec.Diary.Submitted || rec.Diary.SubmittedAt == nil {
		t.Error("expected diary marked submitted with a timestamp")
	}
	if _, ok := rec.Diary.Responses["mood_detail"]; ok {
		t.Error("hidden follow-up answer survived the save")
	}
	if got := rec.Diary.Responses["notes"].Text; got != "Long walk in the park." {
		t.Errorf("notes = %q", got)
	}

	// The write must be durable.
	stored, err := db.GetRecord("2024-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Diary.Submitted {
		t.Error("stored record not submitted")
	}
}

func TestUpdateDiaryClosedWindow(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-02-28", false)

	upd := models.DiaryUpdate{Responses: models.Responses{"notes": models.TextAnswer("late")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-02-28", upd)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestUpdateDiarySubmittedStaysOpenUntilMidnight(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", true)

	upd := models.DiaryUpdate{Responses: models.Responses{"notes": models.TextAnswer("amended")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusOK {
		t.Errorf("resubmission status = %d, want 200", w.Code)
	}
}

func TestUpdateDiaryTodayOnlyRejectsResubmission(t *testing.T) {
	db, router := testEnv(t, EditPolicyTodayOnly, "")
	seedRecord(t, db, "2024-03-02", true)

	upd := models.DiaryUpdate{Responses: models.Responses{"notes": models.TextAnswer("amended")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestUpdateDiaryUntilSubmittedKeepsPastDaysOpen(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilSubmitted, "")
	seedRecord(t, db, "2024-02-28", false)

	upd := models.DiaryUpdate{Responses: models.Responses{"notes": models.TextAnswer("catching up")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-02-28", upd)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestUpdateDiaryUnknownKey(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", false)

	upd := models.DiaryUpdate{Responses: models.Responses{"bogus": models.TextAnswer("x")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestUpdateDiaryTypeMismatch(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", false)

	upd := models.DiaryUpdate{Responses: models.Responses{"mood": models.SetAnswer("Good", "Hard")}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestUpdateDiaryMissingClosedDay(t *testing.T) {
	_, router := testEnv(t, EditPolicyUntilMidnight, "")
	upd := models.DiaryUpdate{Responses: models.Responses{}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-01", upd)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateDiaryCreatesUnseededToday(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	// Today has no record yet; the questionnaire must come from the nearest
	// prior day, the way the portal form seeds an empty today.
	seedRecord(t, db, "2024-02-28", true)

	submitted := true
	upd := models.DiaryUpdate{
		Responses: models.Responses{
			"mood":  models.TextAnswer("Good"),
			"notes": models.TextAnswer("First entry of the day."),
		},
		Submitted: &submitted,
	}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec models.DailyRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if len(rec.Diary.Questions) != 2 {
		t.Errorf("questions = %d, want the prior day's questionnaire", len(rec.Diary.Questions))
	}
	if !rec.Diary.Submitted {
		t.Error("expected the new record marked submitted")
	}

	stored, err := db.GetRecord("2024-03-02")
	if err != nil {
		t.Fatalf("record not created: %v", err)
	}
	if got := stored.Diary.Responses["notes"].Text; got != "First entry of the day." {
		t.Errorf("notes = %q", got)
	}
}

func TestUpdateDiaryCreatesBareTodayWithoutPriorRecords(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")

	upd := models.DiaryUpdate{Responses: models.Responses{}}
	w := doJSON(t, router, http.MethodPut, "/daily/2024-03-02", upd)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := db.GetRecord("2024-03-02"); err != nil {
		t.Fatalf("record not created: %v", err)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	_, router := testEnv(t, EditPolicyUntilMidnight, "")

	sub := SubscriptionRow{
		CaregiverID: 7,
		Platform:    "web_push",
		Endpoint:    "https://push.example.com/send/abc",
		Keys:        json.RawMessage(`{"p256dh":"k1","auth":"a1"}`),
	}
	w := doJSON(t, router, http.MethodPost, "/subscriptions", sub)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created SubscriptionRow
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	// Refresh endpoint via PUT.
	created.Endpoint = "https://push.example.com/send/def"
	w = doJSON(t, router, http.MethodPut, "/subscriptions/1", created)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/subscriptions/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var subs []SubscriptionRow
	if err := json.Unmarshal(w.Body.Bytes(), &subs); err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/send/def" {
		t.Errorf("subscriptions = %+v", subs)
	}
}

func TestSubscriptionErrors(t *testing.T) {
	_, router := testEnv(t, EditPolicyUntilMidnight, "")

	// Missing endpoint is unprocessable.
	bad := SubscriptionRow{CaregiverID: 7, Platform: "web_push"}
	if w := doJSON(t, router, http.MethodPost, "/subscriptions", bad); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid create = %d, want 422", w.Code)
	}

	// Updating a nonexistent id is 404.
	ok := SubscriptionRow{CaregiverID: 7, Platform: "web_push", Endpoint: "https://push.example.com/x"}
	if w := doJSON(t, router, http.MethodPut, "/subscriptions/99", ok); w.Code != http.StatusNotFound {
		t.Errorf("missing update = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "secret")
	seedRecord(t, db, "2024-03-02", false)

	req := httptest.NewRequest(http.MethodGet, "/daily/summaries", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/daily/summaries", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", w.Code)
	}
}

// TestRecordStoreClientRoundTrip drives the dev server through the same
// client the form uses, over a real listener.
func TestRecordStoreClientRoundTrip(t *testing.T) {
	db, router := testEnv(t, EditPolicyUntilMidnight, "")
	seedRecord(t, db, "2024-03-02", false)

	root := chi.NewRouter()
	root.Mount("/api", router)
	srv := httptest.NewServer(root)
	defer srv.Close()

	client := recordstore.NewClient(srv.URL, "UTC")
	ctx := context.Background()

	summaries, err := client.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Date != "2024-03-02" {
		t.Fatalf("summaries = %+v", summaries)
	}

	submitted := true
	rec, err := client.UpdateByDate(ctx, "2024-03-02", models.DiaryUpdate{
		Responses: models.Responses{"notes": models.TextAnswer("done")},
		Submitted: &submitted,
	})
	if err != nil {
		t.Fatalf("UpdateByDate: %v", err)
	}
	if !rec.Diary.Submitted {
		t.Error("expected submitted record")
	}
}
