package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AreslotLLC/kuchikomi/internal/catalog"
)

const (
	// DefaultThreshold: ratings above this trigger draft generation,
	// ratings at or below it end at the thanks step.
	DefaultThreshold = 3
	// DefaultMinLoading keeps the loading step visible even for fast
	// generation responses.
	DefaultMinLoading = 1500 * time.Millisecond
)

// SubmitResult reports where the submit sequence landed.
type SubmitResult struct {
	Step  Step
	Draft *ReviewDraft
}

// SessionService drives one visitor's survey flow: answer recording,
// completeness, and the submit sequence (webhook dispatch, threshold
// branch, draft generation).
type SessionService struct {
	catalog    *catalog.Catalog
	store      SessionStore
	dispatcher StorageDispatcher
	requester  DraftRequester

	// Threshold and MinLoading are configuration, not behavior baked
	// into call sites.
	Threshold  int
	MinLoading time.Duration

	now         func() time.Time
	sleep       func(time.Duration)
	idGenerator func() string
}

// NewSessionService constructs a service over the given catalog, store
// and collaborators.
func NewSessionService(cat *catalog.Catalog, store SessionStore, dispatcher StorageDispatcher, requester DraftRequester) *SessionService {
	return &SessionService{
		catalog:     cat,
		store:       store,
		dispatcher:  dispatcher,
		requester:   requester,
		Threshold:   DefaultThreshold,
		MinLoading:  DefaultMinLoading,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       time.Sleep,
		idGenerator: defaultSessionID,
	}
}

func defaultSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CreateSession opens a new survey session for the client, with the
// demographic questions prepended to the client's own.
func (s *SessionService) CreateSession(clientID string) (*Session, error) {
	cl := s.catalog.Get(clientID)
	if cl == nil {
		return nil, NewNotFoundError("client not found")
	}
	sess := &Session{
		ID:        s.idGenerator(),
		ClientID:  cl.ID,
		Step:      StepSurvey,
		Questions: catalog.SessionQuestions(cl),
		Answers:   map[string]*Value{},
		CreatedAt: s.now(),
	}
	s.store.AddSession(sess)
	return sess, nil
}

// GetSession returns the session by id.
func (s *SessionService) GetSession(id string) (*Session, error) {
	sess := s.store.GetSession(id)
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	return sess, nil
}

func (s *SessionService) editableSession(id string) (*Session, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.Step != StepSurvey {
		return nil, NewInvalidError("session is not accepting answers")
	}
	return sess, nil
}

// RecordAnswer validates the raw value against the question's type and
// stores it. The raw shape per type: rating → number 1..5, single tag →
// option string, multi tag → option string (toggled) or full array,
// boolean → true/false, text → string. A multi-select value that would
// exceed the question's selection bound is silently ignored. Recording
// the same value twice is a no-op.
func (s *SessionService) RecordAnswer(sessionID, questionID string, raw json.RawMessage) (*Session, error) {
	sess, err := s.editableSession(sessionID)
	if err != nil {
		return nil, err
	}
	q := questionByID(sess, questionID)
	if q == nil {
		return nil, NewNotFoundError("unknown question id")
	}

	switch q.Type {
	case catalog.QuestionRating:
		var n int
		if err := json.Unmarshal(raw, &n); err != nil || n < 1 || n > 5 {
			return nil, NewInvalidError("rating must be a number between 1 and 5")
		}
		sess.Answers[q.ID] = &Value{Kind: q.Type, Rating: n}

	case catalog.QuestionTags:
		if q.IsMultiple() {
			return s.recordMultiTag(sess, q, raw)
		}
		var opt string
		if err := json.Unmarshal(raw, &opt); err != nil || !q.HasOption(opt) {
			return nil, NewInvalidError("value must be one of the question's options")
		}
		sess.Answers[q.ID] = &Value{Kind: q.Type, Tag: opt}

	case catalog.QuestionBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, NewInvalidError("value must be true or false")
		}
		sess.Answers[q.ID] = &Value{Kind: q.Type, Bool: b}

	case catalog.QuestionText:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, NewInvalidError("value must be a string")
		}
		sess.Answers[q.ID] = &Value{Kind: q.Type, Text: text}
	}

	return sess, nil
}

// recordMultiTag accepts either a full selection array (replace) or a
// single option string (toggle membership).
func (s *SessionService) recordMultiTag(sess *Session, q *catalog.Question, raw json.RawMessage) (*Session, error) {
	var set []string
	if err := json.Unmarshal(raw, &set); err == nil {
		for _, opt := range set {
			if !q.HasOption(opt) {
				return nil, NewInvalidError("value must use the question's options")
			}
		}
		if q.MaxSelections > 0 && len(set) > q.MaxSelections {
			// Over-limit replacement is ignored, not an error.
			return sess, nil
		}
		sess.Answers[q.ID] = &Value{Kind: q.Type, Tags: dedupe(set)}
		return sess, nil
	}

	var opt string
	if err := json.Unmarshal(raw, &opt); err != nil || !q.HasOption(opt) {
		return nil, NewInvalidError("value must use the question's options")
	}
	current := []string{}
	if v := sess.Answers[q.ID]; v != nil {
		current = v.Tags
	}
	next := toggleTag(current, opt)
	if len(next) > len(current) && q.MaxSelections > 0 && len(current) >= q.MaxSelections {
		// At the bound: the extra toggle leaves the set unchanged.
		return sess, nil
	}
	sess.Answers[q.ID] = &Value{Kind: q.Type, Tags: next}
	return sess, nil
}

func toggleTag(current []string, opt string) []string {
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, t := range current {
		if t == opt {
			removed = true
			continue
		}
		next = append(next, t)
	}
	if !removed {
		next = append(next, opt)
	}
	return next
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func questionByID(sess *Session, id string) *catalog.Question {
	for i := range sess.Questions {
		if sess.Questions[i].ID == id {
			return &sess.Questions[i]
		}
	}
	return nil
}

// IsComplete reports whether every required question has a present,
// non-empty answer.
func (s *SessionService) IsComplete(sess *Session) bool {
	return len(missingAnswers(sess)) == 0
}

func missingAnswers(sess *Session) []string {
	var missing []string
	for i := range sess.Questions {
		q := &sess.Questions[i]
		if q.IsRequired() && !sess.Answers[q.ID].IsAnswered(q) {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// EligibleAnswers extracts the answers whose question carries the
// ai_use flag and has a non-empty value, re-keyed by question label.
// The demographic questions never qualify.
func EligibleAnswers(sess *Session) map[string]string {
	out := map[string]string{}
	for i := range sess.Questions {
		q := &sess.Questions[i]
		if !q.AIUse {
			continue
		}
		if v := sess.Answers[q.ID]; v.IsAnswered(q) {
			out[q.Label] = v.Render()
		}
	}
	return out
}

func demographic(sess *Session, id string) string {
	if v := sess.Answers[id]; v != nil {
		return v.Tag
	}
	return ""
}

// Submit runs the submission sequence: refuse while incomplete,
// dispatch the full answer set to the storage webhook without waiting
// on it, then either finish at thanks (rating at or below the
// threshold) or request a review draft and finish at review. A failed
// generation returns the session to the survey step with the answers
// preserved, so the visitor can resubmit without re-entering anything.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (*SubmitResult, error) {
	sess, err := s.editableSession(sessionID)
	if err != nil {
		return nil, err
	}
	if missing := missingAnswers(sess); len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	cl := s.catalog.Get(sess.ClientID)
	if cl == nil {
		return nil, NewNotFoundError("client not found")
	}

	payload := make(map[string]any, len(sess.Answers))
	for id, v := range sess.Answers {
		payload[id] = v.Export()
	}
	s.dispatcher.Dispatch(cl.ID, cl.WebhookURL, payload)

	if sess.Rating() <= s.Threshold {
		sess.Step = StepThanks
		return &SubmitResult{Step: StepThanks}, nil
	}

	sess.Step = StepLoading
	started := s.now()

	text, err := s.requester.Generate(ctx, GenerateRequest{
		ClientName: cl.Name,
		Answers:    EligibleAnswers(sess),
		Age:        demographic(sess, catalog.AgeQuestionID),
		Gender:     demographic(sess, catalog.GenderQuestionID),
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"client":  cl.ID,
			"session": sess.ID,
		}).WithError(err).Warn("review draft generation failed")
		sess.Step = StepSurvey
		return nil, err
	}

	if remaining := s.MinLoading - s.now().Sub(started); remaining > 0 {
		s.sleep(remaining)
	}

	sess.Draft = &ReviewDraft{Text: text, PostingLink: cl.PostingLink}
	sess.Step = StepReview
	return &SubmitResult{Step: StepReview, Draft: sess.Draft}, nil
}

// Reset transitions a finished session back to the survey step. The
// answer set is kept: the thanks and review screens offer no edit
// affordance, so returning visitors continue from their prior answers.
func (s *SessionService) Reset(sessionID string) (*Session, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Step == StepLoading {
		return nil, NewInvalidError("session is waiting on generation")
	}
	sess.Step = StepSurvey
	sess.Draft = nil
	return sess, nil
}
