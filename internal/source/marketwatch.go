package source

func marketwatch() Definition {
	return Definition{
		ID:   "marketwatch",
		Name: "MarketWatch",
		URL:  "https://www.marketwatch.com/investing/index/vix",
		Consent: []string{
			`#truste-consent-button`,
			`button[title="YES, I AGREE"]`,
		},
		Value: []Candidate{
			Attr(`meta[name="price"]`, "content"),
			Selector(`h2.intraday__price bg-quote.value`),
			Selector(`bg-quote.value`),
			Selector(`h2.intraday__price .value`),
		},
		ChangeAbsolute: []Candidate{
			Attr(`meta[name="priceChange"]`, "content"),
			Selector(`.change--point--q bg-quote`),
			Selector(`bg-quote[field="change"]`),
		},
		ChangePercent: []Candidate{
			Attr(`meta[name="priceChangePercent"]`, "content"),
			Selector(`.change--percent--q bg-quote`),
			Selector(`bg-quote[field="percentchange"]`),
		},
		PreviousClose: []Candidate{
			Selector(`.intraday__close td.table__cell.u-semi`),
			Selector(`.intraday__close .table__cell`),
			Selector(`li.kv__item:contains("Previous Close") .primary`),
		},
		Open: []Candidate{
			Selector(`li.kv__item:contains("Open") .primary`),
		},
		Range: []Candidate{
			Selector(`li.kv__item:contains("Day Range") .primary`),
		},
		Low: []Candidate{
			Selector(`.range__header:contains("Day Low") + .range__content`),
			Selector(`.intraday__range .low`),
		},
		High: []Candidate{
			Selector(`.range__header:contains("Day High") + .range__content`),
			Selector(`.intraday__range .high`),
		},
		Items: ItemRules{
			Containers: []string{
				`div.collection__elements div.element--article`,
				`div.article__content`,
			},
			Link:   `h3.article__headline a[href]`,
			Title:  `h3.article__headline`,
			Dates:  []string{`span.article__timestamp`, `.article__details span`},
			Author: `.article__author`,
		},
	}
}
