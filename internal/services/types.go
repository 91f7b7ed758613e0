package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AreslotLLC/kuchikomi/internal/catalog"
)

// Step is the session state machine position.
type Step string

const (
	StepSurvey  Step = "survey"
	StepLoading Step = "loading"
	StepThanks  Step = "thanks"
	StepReview  Step = "review"
)

// Value is the tagged answer value for one question. Exactly the
// fields matching Kind are meaningful.
type Value struct {
	Kind   catalog.QuestionType `json:"kind"`
	Rating int                  `json:"rating,omitempty"`
	Tag    string               `json:"tag,omitempty"`
	Tags   []string             `json:"tags,omitempty"`
	Bool   bool                 `json:"bool,omitempty"`
	Text   string               `json:"text,omitempty"`
}

// IsAnswered reports whether the value counts as a present, non-empty
// answer. Multi-select needs a non-empty set; rating needs a value > 0.
func (v *Value) IsAnswered(q *catalog.Question) bool {
	if v == nil {
		return false
	}
	switch v.Kind {
	case catalog.QuestionRating:
		return v.Rating > 0
	case catalog.QuestionTags:
		if q.IsMultiple() {
			return len(v.Tags) > 0
		}
		return v.Tag != ""
	case catalog.QuestionBoolean:
		return true
	case catalog.QuestionText:
		return v.Text != ""
	}
	return false
}

// Render formats the value as the human-readable string used in the
// generation prompt.
func (v *Value) Render() string {
	switch v.Kind {
	case catalog.QuestionRating:
		return strconv.Itoa(v.Rating)
	case catalog.QuestionTags:
		if len(v.Tags) > 0 {
			return strings.Join(v.Tags, ", ")
		}
		return v.Tag
	case catalog.QuestionBoolean:
		if v.Bool {
			return "はい"
		}
		return "いいえ"
	case catalog.QuestionText:
		return v.Text
	}
	return ""
}

// Export returns the raw value shape dispatched to the storage webhook.
func (v *Value) Export() any {
	switch v.Kind {
	case catalog.QuestionRating:
		return v.Rating
	case catalog.QuestionTags:
		if len(v.Tags) > 0 {
			return v.Tags
		}
		return v.Tag
	case catalog.QuestionBoolean:
		return v.Bool
	case catalog.QuestionText:
		return v.Text
	}
	return nil
}

// ReviewDraft is the generated review text plus the posting target.
// Created once per successful generation and discarded on reset.
type ReviewDraft struct {
	Text        string `json:"text"`
	PostingLink string `json:"posting_link"`
}

// Session holds one visitor's in-progress answer set and state
// machine position. Owned by a single visitor; never shared.
type Session struct {
	ID        string
	ClientID  string
	Step      Step
	Questions []catalog.Question
	Answers   map[string]*Value
	Draft     *ReviewDraft
	CreatedAt time.Time
}

// Progress returns answered and total question counts.
func (s *Session) Progress() (answered, total int) {
	total = len(s.Questions)
	for i := range s.Questions {
		q := &s.Questions[i]
		if s.Answers[q.ID].IsAnswered(q) {
			answered++
		}
	}
	return answered, total
}

// Rating returns the value of the session's rating question, or 0 when
// unanswered.
func (s *Session) Rating() int {
	for i := range s.Questions {
		if s.Questions[i].Type == catalog.QuestionRating {
			if v := s.Answers[s.Questions[i].ID]; v != nil {
				return v.Rating
			}
		}
	}
	return 0
}

// SessionStore abstracts session persistence for the session service.
type SessionStore interface {
	AddSession(s *Session)
	GetSession(id string) *Session
}

// StorageDispatcher forwards a finished answer set to the client's
// storage webhook. Implementations are fire-and-forget: failures are
// logged, never returned.
type StorageDispatcher interface {
	Dispatch(clientID, webhookURL string, answers map[string]any)
}

// GenerateRequest carries the AI-eligible answers into the draft
// requester, re-keyed from question id to question label.
type GenerateRequest struct {
	ClientName string
	Answers    map[string]string
	Age        string
	Gender     string
}

// DraftRequester produces a promotional review draft from survey
// answers, or a typed failure.
type DraftRequester interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ChatGenerator is the single outbound text-generation call.
type ChatGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// IncompleteError refuses submission while required questions are
// unanswered.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("unanswered required questions: %s", strings.Join(e.Missing, ", "))
}
