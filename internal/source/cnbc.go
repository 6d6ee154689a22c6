package source

func cnbc() Definition {
	return Definition{
		ID:   "cnbc",
		Name: "CNBC",
		URL:  "https://www.cnbc.com/quotes/.VIX",
		Value: []Candidate{
			Selector(`.QuoteStrip-lastPrice`),
			Pattern(`"last":"([0-9.,]+)"`),
		},
		ChangeAbsolute: []Candidate{
			Selector(`.QuoteStrip-changeUp > span:first-child`),
			Selector(`.QuoteStrip-changeDown > span:first-child`),
			Selector(`.QuoteStrip-unchanged > span:first-child`),
			Pattern(`"change":"(-?[0-9.,]+)"`),
		},
		ChangePercent: []Candidate{
			Selector(`.QuoteStrip-changeUp > span:nth-child(2)`),
			Selector(`.QuoteStrip-changeDown > span:nth-child(2)`),
			Pattern(`"change_pct":"(-?[0-9.,]+)%?"`),
		},
		PreviousClose: []Candidate{
			Selector(`li.Summary-stat:contains("Prev Close") .Summary-value`),
			Pattern(`"previous_day_closing":"([0-9.,]+)"`),
		},
		Open: []Candidate{
			Selector(`li.Summary-stat:contains("Open") .Summary-value`),
			Pattern(`"open":"([0-9.,]+)"`),
		},
		Range: []Candidate{
			Selector(`li.Summary-stat:contains("Day Range") .Summary-value`),
		},
		Low: []Candidate{
			Selector(`li.Summary-stat:contains("Day Low") .Summary-value`),
			Pattern(`"low":"([0-9.,]+)"`),
		},
		High: []Candidate{
			Selector(`li.Summary-stat:contains("Day High") .Summary-value`),
			Pattern(`"high":"([0-9.,]+)"`),
		},
		Items: ItemRules{
			Containers: []string{
				`div.QuotePageNews-item`,
				`li.LatestNews-item`,
				`div.LatestNews-newsFeed`,
			},
			Link:  `a[href*="cnbc.com/20"], a.LatestNews-headline, a[href]`,
			Dates: []string{`time.LatestNews-timestamp`, `span.LatestNews-timestamp`, `.QuotePageNews-timestamp`},
		},
	}
}
