package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/AreslotLLC/kuchikomi/internal/catalog"
)

type stubStore struct {
	sessions map[string]*Session
}

func newStubStore() *stubStore { return &stubStore{sessions: map[string]*Session{}} }

func (s *stubStore) AddSession(sess *Session)      { s.sessions[sess.ID] = sess }
func (s *stubStore) GetSession(id string) *Session { return s.sessions[id] }

type stubDispatcher struct {
	calls   int
	clients []string
	urls    []string
	payload map[string]any
}

func (d *stubDispatcher) Dispatch(clientID, webhookURL string, answers map[string]any) {
	d.calls++
	d.clients = append(d.clients, clientID)
	d.urls = append(d.urls, webhookURL)
	d.payload = answers
}

type stubRequester struct {
	calls int
	text  string
	err   error
	last  GenerateRequest
}

func (r *stubRequester) Generate(_ context.Context, req GenerateRequest) (string, error) {
	r.calls++
	r.last = req
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

func boolPtr(b bool) *bool { return &b }

func acmeCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(&catalog.Client{
		ID:          "acme",
		Name:        "Acme",
		PostingLink: "https://maps.example.com/acme/review",
		WebhookURL:  "https://hooks.example.com/acme",
		Questions: []catalog.Question{
			{ID: "rating", Type: catalog.QuestionRating, Label: "満足度"},
			{
				ID:       "quality",
				Type:     catalog.QuestionTags,
				Label:    "いかがでしたか",
				Options:  []string{"Good", "Bad"},
				Multiple: boolPtr(false),
				AIUse:    true,
			},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

type fixture struct {
	svc        *SessionService
	store      *stubStore
	dispatcher *stubDispatcher
	requester  *stubRequester
	slept      []time.Duration
}

func newFixture(t *testing.T, cat *catalog.Catalog) *fixture {
	t.Helper()
	f := &fixture{
		store:      newStubStore(),
		dispatcher: &stubDispatcher{},
		requester:  &stubRequester{text: "Great place!"},
	}
	f.svc = NewSessionService(cat, f.store, f.dispatcher, f.requester)
	f.svc.now = func() time.Time { return time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC) }
	f.svc.sleep = func(d time.Duration) { f.slept = append(f.slept, d) }
	f.svc.idGenerator = func() string { return "SESS00000001" }
	return f
}

func mustAnswer(t *testing.T, f *fixture, sessionID, questionID string, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	if _, err := f.svc.RecordAnswer(sessionID, questionID, raw); err != nil {
		t.Fatalf("RecordAnswer(%s): %v", questionID, err)
	}
}

func TestCreateSessionPrependsDemographics(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, err := f.svc.CreateSession("acme")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Step != StepSurvey {
		t.Fatalf("step = %q, want survey", sess.Step)
	}
	if len(sess.Questions) != 4 {
		t.Fatalf("questions = %d, want 4", len(sess.Questions))
	}
	if sess.Questions[0].ID != catalog.GenderQuestionID || sess.Questions[1].ID != catalog.AgeQuestionID {
		t.Fatalf("demographics not prepended: %q, %q", sess.Questions[0].ID, sess.Questions[1].ID)
	}
}

func TestCreateSessionUnknownClient(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	if _, err := f.svc.CreateSession("nope"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestSubmitRefusesIncomplete(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, "rating", 5)
	if f.svc.IsComplete(sess) {
		t.Fatal("session complete with an unanswered required question")
	}

	_, err := f.svc.Submit(context.Background(), sess.ID)
	var inc *IncompleteError
	if !errors.As(err, &inc) {
		t.Fatalf("expected IncompleteError, got %v", err)
	}
	if len(inc.Missing) != 1 || inc.Missing[0] != "quality" {
		t.Fatalf("missing = %v, want [quality]", inc.Missing)
	}
	if sess.Step != StepSurvey {
		t.Fatalf("step = %q, want survey", sess.Step)
	}
	if f.dispatcher.calls != 0 {
		t.Fatalf("dispatcher calls = %d, want 0", f.dispatcher.calls)
	}
	if f.requester.calls != 0 {
		t.Fatalf("requester calls = %d, want 0", f.requester.calls)
	}
}

func TestSubmitLowRatingGoesToThanks(t *testing.T) {
	for _, rating := range []int{1, 2, 3} {
		f := newFixture(t, acmeCatalog(t))
		sess, _ := f.svc.CreateSession("acme")
		mustAnswer(t, f, sess.ID, "rating", rating)
		mustAnswer(t, f, sess.ID, "quality", "Bad")

		result, err := f.svc.Submit(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("rating %d: Submit: %v", rating, err)
		}
		if result.Step != StepThanks || sess.Step != StepThanks {
			t.Fatalf("rating %d: step = %q, want thanks", rating, sess.Step)
		}
		if f.requester.calls != 0 {
			t.Fatalf("rating %d: requester calls = %d, want 0", rating, f.requester.calls)
		}
		if f.dispatcher.calls != 1 {
			t.Fatalf("rating %d: dispatcher calls = %d, want 1", rating, f.dispatcher.calls)
		}
	}
}

func TestSubmitHighRatingProducesReview(t *testing.T) {
	for _, rating := range []int{4, 5} {
		f := newFixture(t, acmeCatalog(t))
		sess, _ := f.svc.CreateSession("acme")
		mustAnswer(t, f, sess.ID, "rating", rating)
		mustAnswer(t, f, sess.ID, "quality", "Good")

		result, err := f.svc.Submit(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("rating %d: Submit: %v", rating, err)
		}
		if result.Step != StepReview || sess.Step != StepReview {
			t.Fatalf("rating %d: step = %q, want review", rating, sess.Step)
		}
		if result.Draft == nil || result.Draft.Text != "Great place!" {
			t.Fatalf("rating %d: draft = %+v", rating, result.Draft)
		}
		if result.Draft.PostingLink != "https://maps.example.com/acme/review" {
			t.Fatalf("rating %d: posting link = %q", rating, result.Draft.PostingLink)
		}
		if f.requester.calls != 1 {
			t.Fatalf("rating %d: requester calls = %d, want 1", rating, f.requester.calls)
		}
		if f.dispatcher.calls != 1 {
			t.Fatalf("rating %d: dispatcher calls = %d, want 1", rating, f.dispatcher.calls)
		}
		if len(f.slept) != 1 || f.slept[0] != f.svc.MinLoading {
			t.Fatalf("rating %d: slept = %v, want one %v pause", rating, f.slept, f.svc.MinLoading)
		}
	}
}

func TestSubmitDispatchesWebhookPayload(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, "rating", 2)
	mustAnswer(t, f, sess.ID, "quality", "Bad")

	if _, err := f.svc.Submit(context.Background(), sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.dispatcher.clients[0] != "acme" {
		t.Fatalf("dispatched client = %q", f.dispatcher.clients[0])
	}
	if f.dispatcher.urls[0] != "https://hooks.example.com/acme" {
		t.Fatalf("dispatched url = %q", f.dispatcher.urls[0])
	}
	if f.dispatcher.payload["rating"] != 2 {
		t.Fatalf("payload rating = %v", f.dispatcher.payload["rating"])
	}
	if f.dispatcher.payload["quality"] != "Bad" {
		t.Fatalf("payload quality = %v", f.dispatcher.payload["quality"])
	}
}

func TestSubmitGenerationFailureReturnsToSurvey(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	f.requester.err = NewBadGatewayError("upstream exploded")
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, "rating", 5)
	mustAnswer(t, f, sess.ID, "quality", "Good")

	_, err := f.svc.Submit(context.Background(), sess.ID)
	if err == nil {
		t.Fatal("expected generation error")
	}
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorBadGateway {
		t.Fatalf("error = %v, want bad_gateway", err)
	}
	if sess.Step != StepSurvey {
		t.Fatalf("step = %q, want survey", sess.Step)
	}
	// The answer set survives so the visitor can resubmit as-is.
	if got := sess.Answers["quality"]; got == nil || got.Tag != "Good" {
		t.Fatalf("answers not preserved: %+v", got)
	}

	// A fresh submit issues a fresh independent call.
	f.requester.err = nil
	result, err := f.svc.Submit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if result.Step != StepReview {
		t.Fatalf("resubmit step = %q, want review", result.Step)
	}
	if f.requester.calls != 2 {
		t.Fatalf("requester calls = %d, want 2", f.requester.calls)
	}
}

func TestSubmitPassesDemographicsAndEligibleAnswers(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, catalog.GenderQuestionID, "女性")
	mustAnswer(t, f, sess.ID, catalog.AgeQuestionID, "40〜50代")
	mustAnswer(t, f, sess.ID, "rating", 5)
	mustAnswer(t, f, sess.ID, "quality", "Good")

	if _, err := f.svc.Submit(context.Background(), sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req := f.requester.last
	if req.ClientName != "Acme" {
		t.Fatalf("client name = %q", req.ClientName)
	}
	if req.Gender != "女性" || req.Age != "40〜50代" {
		t.Fatalf("demographics = %q/%q", req.Gender, req.Age)
	}
	// Only ai_use answers, keyed by label. Rating and demographics are
	// never eligible.
	if len(req.Answers) != 1 || req.Answers["いかがでしたか"] != "Good" {
		t.Fatalf("eligible answers = %v", req.Answers)
	}
}

func TestToggleTagHonorsSelectionBound(t *testing.T) {
	cat, err := catalog.New(&catalog.Client{
		ID:   "c1",
		Name: "C1",
		Questions: []catalog.Question{
			{ID: "rating", Type: catalog.QuestionRating, Label: "rate"},
			{
				ID:            "vibe",
				Type:          catalog.QuestionTags,
				Label:         "vibe",
				Options:       []string{"a", "b", "c", "d"},
				MaxSelections: 2,
				AIUse:         true,
			},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	f := newFixture(t, cat)
	sess, _ := f.svc.CreateSession("c1")

	mustAnswer(t, f, sess.ID, "vibe", "a")
	mustAnswer(t, f, sess.ID, "vibe", "b")
	// Third selection at the bound is a silent no-op.
	mustAnswer(t, f, sess.ID, "vibe", "c")
	v := sess.Answers["vibe"]
	if len(v.Tags) != 2 || v.Tags[0] != "a" || v.Tags[1] != "b" {
		t.Fatalf("tags = %v, want [a b]", v.Tags)
	}

	// Toggling a selected tag removes it, freeing a slot.
	mustAnswer(t, f, sess.ID, "vibe", "a")
	mustAnswer(t, f, sess.ID, "vibe", "c")
	v = sess.Answers["vibe"]
	if len(v.Tags) != 2 || v.Tags[0] != "b" || v.Tags[1] != "c" {
		t.Fatalf("tags = %v, want [b c]", v.Tags)
	}

	// A full replacement array over the bound is also ignored.
	mustAnswer(t, f, sess.ID, "vibe", []string{"a", "b", "c"})
	v = sess.Answers["vibe"]
	if len(v.Tags) != 2 {
		t.Fatalf("over-limit replacement applied: %v", v.Tags)
	}

	// An in-bound replacement array is applied and idempotent.
	mustAnswer(t, f, sess.ID, "vibe", []string{"d"})
	mustAnswer(t, f, sess.ID, "vibe", []string{"d"})
	v = sess.Answers["vibe"]
	if len(v.Tags) != 1 || v.Tags[0] != "d" {
		t.Fatalf("tags = %v, want [d]", v.Tags)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")

	for _, bad := range []string{"0", "6", "\"five\""} {
		if _, err := f.svc.RecordAnswer(sess.ID, "rating", json.RawMessage(bad)); err == nil {
			t.Fatalf("rating %s accepted", bad)
		}
	}
	if _, err := f.svc.RecordAnswer(sess.ID, "quality", json.RawMessage("\"Mediocre\"")); err == nil {
		t.Fatal("off-options tag accepted")
	}
	if _, err := f.svc.RecordAnswer(sess.ID, "missing", json.RawMessage("1")); err == nil {
		t.Fatal("unknown question accepted")
	}

	mustAnswer(t, f, sess.ID, "rating", 4)
	mustAnswer(t, f, sess.ID, "rating", 4) // identical input is idempotent
	mustAnswer(t, f, sess.ID, "rating", 5) // replacement wins
	if sess.Answers["rating"].Rating != 5 {
		t.Fatalf("rating = %d, want 5", sess.Answers["rating"].Rating)
	}
}

func TestRecordAnswerRefusedOutsideSurvey(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, "rating", 1)
	mustAnswer(t, f, sess.ID, "quality", "Bad")
	if _, err := f.svc.Submit(context.Background(), sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := f.svc.RecordAnswer(sess.ID, "rating", json.RawMessage("3")); err == nil {
		t.Fatal("answer accepted on a finished session")
	}
	if _, err := f.svc.Submit(context.Background(), sess.ID); err == nil {
		t.Fatal("submit accepted on a finished session")
	}
}

func TestResetKeepsAnswersDropsDraft(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	mustAnswer(t, f, sess.ID, "rating", 5)
	mustAnswer(t, f, sess.ID, "quality", "Good")
	if _, err := f.svc.Submit(context.Background(), sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sess.Draft == nil {
		t.Fatal("expected a draft after review")
	}

	got, err := f.svc.Reset(sess.ID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got.Step != StepSurvey {
		t.Fatalf("step = %q, want survey", got.Step)
	}
	if got.Draft != nil {
		t.Fatal("draft survived reset")
	}
	if got.Answers["rating"].Rating != 5 {
		t.Fatal("answers cleared by reset")
	}
}

func TestEligibleAnswersSkipEmptyValues(t *testing.T) {
	cat, err := catalog.New(&catalog.Client{
		ID:   "c2",
		Name: "C2",
		Questions: []catalog.Question{
			{ID: "rating", Type: catalog.QuestionRating, Label: "rate"},
			{ID: "pain", Type: catalog.QuestionBoolean, Label: "痛みへの配慮", AIUse: true},
			{ID: "comments", Type: catalog.QuestionText, Label: "ご意見", AIUse: true, Required: boolPtr(false)},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	f := newFixture(t, cat)
	sess, _ := f.svc.CreateSession("c2")
	mustAnswer(t, f, sess.ID, "pain", false)
	mustAnswer(t, f, sess.ID, "comments", "")

	eligible := EligibleAnswers(sess)
	if len(eligible) != 1 {
		t.Fatalf("eligible = %v, want only the boolean", eligible)
	}
	if eligible["痛みへの配慮"] != "いいえ" {
		t.Fatalf("boolean rendered as %q", eligible["痛みへの配慮"])
	}
}

func TestProgressCountsAnsweredQuestions(t *testing.T) {
	f := newFixture(t, acmeCatalog(t))
	sess, _ := f.svc.CreateSession("acme")
	if answered, total := sess.Progress(); answered != 0 || total != 4 {
		t.Fatalf("progress = %d/%d, want 0/4", answered, total)
	}
	mustAnswer(t, f, sess.ID, "rating", 3)
	mustAnswer(t, f, sess.ID, catalog.GenderQuestionID, "男性")
	if answered, total := sess.Progress(); answered != 2 || total != 4 {
		t.Fatalf("progress = %d/%d, want 2/4", answered, total)
	}
}
