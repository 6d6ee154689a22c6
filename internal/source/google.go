package source

func google() Definition {
	return Definition{
		ID:   "google",
		Name: "Google Finance",
		URL:  "https://www.google.com/finance/quote/VIX:INDEXCBOE",
		Consent: []string{
			`button[aria-label="Accept all"]`,
			`form[action*="consent"] button`,
		},
		Value: []Candidate{
			Attr(`[data-last-price]`, "data-last-price"),
			Selector(`div.YMlKec.fxKbKc`),
		},
		ChangePercent: []Candidate{
			Selector(`div.JwB6zf`),
		},
		PreviousClose: []Candidate{
			Selector(`div.gyFHrc:contains("Previous close") .P6K39c`),
		},
		Range: []Candidate{
			Selector(`div.gyFHrc:contains("Day range") .P6K39c`),
		},
		Items: ItemRules{
			Containers: []string{`div.yY3Lee`, `div.z4rs2b`},
			Title:      `div.Yfwt5`,
			Dates:      []string{`div.Adak`},
			Author:     `div.sfyJob`,
		},
	}
}
