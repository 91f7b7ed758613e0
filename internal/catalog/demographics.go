package catalog

// Ids of the demographic questions prepended to every client's survey.
const (
	GenderQuestionID = "gender"
	AgeQuestionID    = "age"
)

func boolPtr(b bool) *bool { return &b }

// DemographicQuestions returns the two implicit demographic questions
// shown ahead of the client-specific ones. They are single-select,
// optional (the prompt falls back to 未回答), and never included in the
// generation prompt.
func DemographicQuestions() []Question {
	return []Question{
		{
			ID:       GenderQuestionID,
			Type:     QuestionTags,
			Label:    "性別を教えてください",
			Options:  []string{"男性", "女性", "その他・回答を控える"},
			Multiple: boolPtr(false),
			Required: boolPtr(false),
		},
		{
			ID:       AgeQuestionID,
			Type:     QuestionTags,
			Label:    "年齢層を教えてください",
			Options:  []string{"20代未満", "20〜30代", "40〜50代", "60代以上"},
			Multiple: boolPtr(false),
			Required: boolPtr(false),
		},
	}
}

// SessionQuestions returns the full ordered question list for one
// session: demographics first, then the client's own questions.
func SessionQuestions(cl *Client) []Question {
	qs := DemographicQuestions()
	return append(qs, cl.Questions...)
}
