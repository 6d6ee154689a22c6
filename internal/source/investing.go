package source

func investing() Definition {
	return Definition{
		ID:      "investing",
		Name:    "Investing.com",
		URL:     "https://www.investing.com/indices/volatility-s-p-500",
		FeedURL: "https://www.investing.com/rss/news_25.rss",
		Consent: []string{`#onetrust-accept-btn-handler`},
		Value: []Candidate{
			Selector(`[data-test="instrument-price-last"]`),
			Selector(`#last_last`),
			Pattern(`"last":([0-9.]+),"`),
		},
		ChangeAbsolute: []Candidate{
			Selector(`[data-test="instrument-price-change"]`),
			Selector(`span.arial_20.pid-44336-pc`),
		},
		ChangePercent: []Candidate{
			Selector(`[data-test="instrument-price-change-percent"]`),
			Selector(`span.arial_20.pid-44336-pcp`),
		},
		PreviousClose: []Candidate{
			Selector(`dd[data-test="prevClose"] span`),
			Selector(`[data-test="prevClose"]`),
		},
		Open: []Candidate{
			Selector(`dd[data-test="open"] span`),
			Selector(`[data-test="open"]`),
		},
		Range: []Candidate{
			Selector(`dd[data-test="dailyRange"]`),
			Selector(`[data-test="dailyRange"]`),
		},
		Low: []Candidate{
			Selector(`[data-test="dailyRange"] span:first-child`),
		},
		High: []Candidate{
			Selector(`[data-test="dailyRange"] span:last-child`),
		},
		Items: ItemRules{
			Containers: []string{
				`ul[data-test="news-list"] article`,
				`div.mediumTitle1 article`,
			},
			Link:   `a[data-test="article-title-link"], a.title, a[href]`,
			Dates:  []string{`time[data-test="article-publish-date"]`, `span.date`},
			Author: `span[data-test="news-provider-name"]`,
		},
	}
}
