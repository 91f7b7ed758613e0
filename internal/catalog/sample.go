package catalog

// Sample returns a development catalog with two example clients. Used
// when no catalog file is configured.
func Sample() *Catalog {
	c, err := New(
		&Client{
			ID:          "yokoyama-tax-office",
			Name:        "横山千夏税理士事務所",
			PostingLink: "https://search.google.com/local/writereview?placeid=ChIJG0JfqSk6AWARwU93HJBPuk8",
			WebhookURL:  "https://script.google.com/macros/s/SAMPLE/exec",
			Theme:       "emerald",
			Questions: []Question{
				{
					ID:    "rating",
					Type:  QuestionRating,
					Label: "サービスの満足度を教えてください",
				},
				{
					ID:       "request_type",
					Type:     QuestionTags,
					Label:    "相談（依頼）内容を教えてください",
					Options:  []string{"相続関連", "法人顧問", "個人顧問", "経理関連", "不動産関連"},
					Multiple: boolPtr(true),
					AIUse:    true,
				},
				{
					ID:            "atmosphere",
					Type:          QuestionTags,
					Label:         "事務所の雰囲気や対応はいかがでしたか？（上位3つを選択）",
					Options:       []string{"清潔", "落ち着いている", "丁寧な対応", "話しやすい", "女性でも安心", "専門的", "説明が丁寧", "親身な対応", "スピーディー", "おすすめできる", "信頼できる", "アットホーム", "誠実な対応", "プライバシーへの配慮", "雰囲気が明るい"},
					MaxSelections: 3,
					AIUse:         true,
				},
				{
					ID:       "comments",
					Type:     QuestionText,
					Label:    "その他、ご意見・ご感想があればお聞かせください",
					AIUse:    true,
					Required: boolPtr(false),
				},
			},
		},
		&Client{
			ID:          "dental-clinic-b",
			Name:        "B歯科クリニック",
			PostingLink: "https://maps.app.goo.gl/example2",
			WebhookURL:  "https://script.google.com/macros/s/SAMPLE2/exec",
			Theme:       "blue",
			Questions: []Question{
				{
					ID:    "rating",
					Type:  QuestionRating,
					Label: "診察・治療の満足度を教えてください",
				},
				{
					ID:    "pain",
					Type:  QuestionBoolean,
					Label: "痛みへの配慮は感じられましたか？",
					AIUse: true,
				},
				{
					ID:       "explanation",
					Type:     QuestionTags,
					Label:    "説明のわかりやすさはいかがでしたか？",
					Options:  []string{"非常にわかりやすい", "わかりやすい", "普通", "不十分"},
					Multiple: boolPtr(false),
					AIUse:    true,
				},
				{
					ID:       "comments",
					Type:     QuestionText,
					Label:    "その他、気になった点があれば教えてください",
					AIUse:    true,
					Required: boolPtr(false),
				},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}
