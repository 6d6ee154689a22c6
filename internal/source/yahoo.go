package source

func yahoo() Definition {
	return Definition{
		ID:      "yahoo",
		Name:    "Yahoo Finance",
		URL:     "https://finance.yahoo.com/quote/%5EVIX/",
		FeedURL: "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%5EVIX&region=US&lang=en-US",
		Consent: []string{
			`button[name="agree"]`,
			`button.accept-all`,
			`form[action*="consent"] button[type="submit"]`,
		},
		Value: []Candidate{
			Attr(`fin-streamer[data-field="regularMarketPrice"][data-symbol="^VIX"]`, "data-value"),
			Selector(`[data-testid="qsp-price"]`),
			Selector(`fin-streamer[data-field="regularMarketPrice"]`),
			Pattern(`"regularMarketPrice":\{"raw":([0-9.]+)`),
		},
		ChangeAbsolute: []Candidate{
			Attr(`fin-streamer[data-field="regularMarketChange"][data-symbol="^VIX"]`, "data-value"),
			Selector(`[data-testid="qsp-price-change"]`),
			Pattern(`"regularMarketChange":\{"raw":(-?[0-9.]+)`),
		},
		ChangePercent: []Candidate{
			Attr(`fin-streamer[data-field="regularMarketChangePercent"][data-symbol="^VIX"]`, "data-value"),
			Selector(`[data-testid="qsp-price-change-percent"]`),
			Pattern(`"regularMarketChangePercent":\{"raw":(-?[0-9.]+)`),
		},
		PreviousClose: []Candidate{
			Selector(`fin-streamer[data-field="regularMarketPreviousClose"]`),
			Selector(`td[data-test="PREV_CLOSE-value"]`),
			Pattern(`"regularMarketPreviousClose":\{"raw":([0-9.]+)`),
		},
		Open: []Candidate{
			Selector(`fin-streamer[data-field="regularMarketOpen"]`),
			Selector(`td[data-test="OPEN-value"]`),
			Pattern(`"regularMarketOpen":\{"raw":([0-9.]+)`),
		},
		Range: []Candidate{
			Selector(`fin-streamer[data-field="regularMarketDayRange"]`),
			Selector(`td[data-test="DAYS_RANGE-value"]`),
		},
		Low: []Candidate{
			Pattern(`"regularMarketDayLow":\{"raw":([0-9.]+)`),
		},
		High: []Candidate{
			Pattern(`"regularMarketDayHigh":\{"raw":([0-9.]+)`),
		},
		Items: ItemRules{
			Containers: []string{
				`section[data-testid="storyitem"]`,
				`li.stream-item`,
				`#quoteNewsStream li`,
			},
			Title:  "h3",
			Dates:  []string{`div.publishing`, `.footer .publishing`, `time`},
			Author: `.publishing .provider`,
		},
	}
}
