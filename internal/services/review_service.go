package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// systemInstruction frames the generator as writing from the visitor's
// own perspective.
const systemInstruction = "あなたは実在する利用者の視点で、自然な日本語の口コミを書くアシスタントです。"

// ReviewService is the draft requester: it builds the generation
// prompt from the AI-eligible answers and issues exactly one call to
// the chat generator. No retry, no caching of prior drafts.
type ReviewService struct {
	generator ChatGenerator
}

// NewReviewService constructs a requester over the given generator.
func NewReviewService(generator ChatGenerator) *ReviewService {
	return &ReviewService{generator: generator}
}

// Generate produces the review passage, or a typed failure. Credential
// problems surface as a missing_credential ServiceError before any
// network traffic (enforced by the generator); everything else from
// the upstream maps to bad_gateway with the upstream's message.
func (s *ReviewService) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.ClientName == "" {
		return "", NewInvalidError("client name required")
	}
	if len(req.Answers) == 0 {
		return "", NewInvalidError("answers required")
	}

	text, err := s.generator.Complete(ctx, systemInstruction, BuildPrompt(req))
	if err != nil {
		if _, ok := AsServiceError(err); ok {
			return "", err
		}
		return "", NewBadGatewayError(err.Error())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewBadGatewayError("generator returned an empty draft")
	}
	return text, nil
}

func orUnanswered(s string) string {
	if s == "" {
		return "未回答"
	}
	return s
}

// BuildPrompt composes the user prompt: visitor-perspective framing
// tailored to the demographic brackets, a 100–150 character length
// bound, no facts beyond the supplied answers, and a polite,
// non-promotional register.
func BuildPrompt(req GenerateRequest) string {
	labels := make([]string, 0, len(req.Answers))
	for label := range req.Answers {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var summary strings.Builder
	for _, label := range labels {
		summary.WriteString(label)
		summary.WriteString(": ")
		summary.WriteString(req.Answers[label])
		summary.WriteString("\n")
	}

	age := orUnanswered(req.Age)
	gender := orUnanswered(req.Gender)

	return fmt.Sprintf(`あなたは %s の利用者（性別：%s、年齢層：%s）です。
以下の利用者の感想を元に、Googleマップに投稿するための自然な口コミ文章を作成してください。

【作成のガイドライン】
- 回答者の属性（%s、%s）に合わせた、ごく一般的で違和感のない「ですます」調で書いてください。
- 丁寧すぎたり、事務的すぎたりせず、利用者が自分の言葉で書いたような自然なトーンにしてください。
- 文章は100〜150文字程度。
- 嘘は書かず、提供された感想（以下の【利用者の感想】）の内容のみを使用してください。

【利用者の感想】
%s
【制約】
- 「私は〜」という表現は最小限に。
- 広告らしさを避け、誠実で具体的な感想に。`, req.ClientName, gender, age, age, gender, summary.String())
}
