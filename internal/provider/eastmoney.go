package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// EastmoneyProvider is the last realtime/history tier and the sole source
// for deep-dive data: fundamentals (push2 stock/get), major holders
// (datacenter-web) and announcements (np-anotice). push2 reports prices and
// ratios as scaled integers; this adapter unscales them.
type EastmoneyProvider struct {
	client     *http.Client
	quoteURL   string
	klineURL   string
	holdersURL string
	newsURL    string
	loc        *time.Location
}

func NewEastmoneyProvider(client *http.Client, loc *time.Location) *EastmoneyProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EastmoneyProvider{
		client:     client,
		quoteURL:   "https://push2.eastmoney.com/api/qt/stock/get",
		klineURL:   "https://push2his.eastmoney.com/api/qt/stock/kline/get",
		holdersURL: "https://datacenter-web.eastmoney.com/api/data/v1/get",
		newsURL:    "https://np-anotice-stock.eastmoney.com/api/security/ann",
		loc:        loc,
	}
}

func (p *EastmoneyProvider) Name() string { return "eastmoney" }

func (p *EastmoneyProvider) Supports(kind FetchKind) bool {
	switch kind {
	case KindRealtimeQuote, KindHistoryWindow, KindFundamentals, KindHolders, KindNews:
		return true
	}
	return false
}

func (p *EastmoneyProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	switch req.Kind {
	case KindRealtimeQuote:
		return p.fetchQuotes(ctx, req)
	case KindHistoryWindow:
		return p.fetchKlines(ctx, req)
	case KindFundamentals:
		return p.fetchFundamentals(ctx, req)
	case KindHolders:
		return p.fetchHolders(ctx, req)
	case KindNews:
		return p.fetchNews(ctx, req)
	default:
		return nil, ErrUnsupportedKind
	}
}

// quoteFields covers realtime pricing plus the fundamentals the deep-dive
// view needs; the two fetch kinds share one upstream call shape.
const quoteFields = "f43,f44,f45,f46,f47,f48,f50,f57,f58,f60,f116,f117,f127,f162,f167,f168,f173,f174,f175"

// push2 mixes numeric and string field values ("-" for missing), so the
// field map stays raw and the helpers below coerce per use.
type eastmoneyQuoteResp struct {
	Data map[string]json.RawMessage `json:"data"`
}

func (p *EastmoneyProvider) getQuoteData(ctx context.Context, symbol string) (map[string]json.RawMessage, error) {
	url := fmt.Sprintf("%s?secid=%s&fields=%s&invt=2&fltt=2", p.quoteURL, eastmoneySecID(symbol), quoteFields)
	body, err := getUTF8(ctx, p.client, url, nil)
	if err != nil {
		return nil, err
	}
	var resp eastmoneyQuoteResp
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("quote decode for %s: %w", symbol, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("quote for %s: %w", symbol, ErrEmptyResponse)
	}
	return resp.Data, nil
}

func fval(data map[string]json.RawMessage, key string) float64 {
	raw, ok := data[key]
	if !ok {
		return 0
	}
	var v float64
	if json.Unmarshal(raw, &v) == nil {
		return v
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return num(s)
	}
	return 0
}

func sval(data map[string]json.RawMessage, key string) string {
	var s string
	if json.Unmarshal(data[key], &s) == nil {
		return s
	}
	return ""
}

// fetchQuotes issues one stock/get per symbol; push2 has no batch endpoint
// for this field set. Per-symbol failures are skipped, an all-failed batch
// reports the last error so the chain can advance.
func (p *EastmoneyProvider) fetchQuotes(ctx context.Context, req Request) (*Payload, error) {
	symbols := req.Symbols
	if len(symbols) == 0 && req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	if len(symbols) == 0 {
		return nil, ErrEmptyResponse
	}

	now := time.Now().In(p.loc)
	quotes := make([]domain.QuoteSnapshot, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		data, err := p.getQuoteData(ctx, symbol)
		if err != nil {
			lastErr = err
			continue
		}
		price := fval(data, "f43")
		if price <= 0 {
			lastErr = fmt.Errorf("quote for %s: %w", symbol, ErrEmptyResponse)
			continue
		}
		prevClose := fval(data, "f60")
		q := domain.QuoteSnapshot{
			Symbol:       symbol,
			Timestamp:    now,
			Price:        price,
			High:         fval(data, "f44"),
			Low:          fval(data, "f45"),
			Open:         fval(data, "f46"),
			PrevClose:    prevClose,
			Volume:       fval(data, "f47") * 100,
			Turnover:     fval(data, "f48"),
			VolumeRatio:  fval(data, "f50"),
			TurnoverRate: fval(data, "f168"),
		}
		q.Name = sval(data, "f58")
		if prevClose > 0 {
			q.PctChange = (price/prevClose - 1.0) * 100
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrEmptyResponse
	}
	return &Payload{Kind: KindRealtimeQuote, Quotes: quotes}, nil
}

type eastmoneyKlineResp struct {
	Data struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (p *EastmoneyProvider) fetchKlines(ctx context.Context, req Request) (*Payload, error) {
	symbol := req.primarySymbol()
	days := req.Days
	if days <= 0 {
		days = 320
	}

	url := fmt.Sprintf("%s?secid=%s&klt=101&fqt=1&end=20500101&lmt=%d&fields1=f1,f2,f3&fields2=f51,f52,f53,f54,f55,f56,f57",
		p.klineURL, eastmoneySecID(symbol), days)
	body, err := getUTF8(ctx, p.client, url, nil)
	if err != nil {
		return nil, err
	}

	var resp eastmoneyKlineResp
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("kline decode for %s: %w", symbol, err)
	}
	if len(resp.Data.Klines) == 0 {
		return nil, fmt.Errorf("kline for %s: %w", symbol, ErrEmptyResponse)
	}

	bars := make([]domain.Bar, 0, len(resp.Data.Klines))
	for _, row := range resp.Data.Klines {
		// Row layout: date,open,close,high,low,volume(lots),turnover.
		f := strings.Split(row, ",")
		if len(f) < 7 {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", f[0], p.loc)
		if err != nil {
			continue
		}
		bars = append(bars, domain.Bar{
			Time:     t,
			Open:     num(f[1]),
			Close:    num(f[2]),
			High:     num(f[3]),
			Low:      num(f[4]),
			Volume:   num(f[5]) * 100,
			Turnover: num(f[6]),
		})
	}
	if len(bars) == 0 {
		return nil, ErrEmptyResponse
	}

	w := domain.NewPriceWindowSorted(symbol, bars)
	return &Payload{Kind: KindHistoryWindow, Window: &w}, nil
}

func (p *EastmoneyProvider) fetchFundamentals(ctx context.Context, req Request) (*Payload, error) {
	symbol := req.primarySymbol()
	data, err := p.getQuoteData(ctx, symbol)
	if err != nil {
		return nil, err
	}

	fu := &Fundamentals{
		Symbol:       symbol,
		Name:         sval(data, "f58"),
		Industry:     sval(data, "f127"),
		PE:           fval(data, "f162"),
		PB:           fval(data, "f167"),
		ROE:          fval(data, "f173"),
		MarketCap:    fval(data, "f116"),
		FloatCap:     fval(data, "f117"),
		TurnoverRate: fval(data, "f168"),
		High52:       fval(data, "f174"),
		Low52:        fval(data, "f175"),
	}
	if fu.Name == "" && fu.Industry == "" {
		return nil, fmt.Errorf("fundamentals for %s: %w", symbol, ErrEmptyResponse)
	}
	return &Payload{Kind: KindFundamentals, Fundamentals: fu}, nil
}

type eastmoneyHoldersResp struct {
	Result struct {
		Data []struct {
			HolderName      string  `json:"HOLDER_NAME"`
			HoldNumRatio    float64 `json:"HOLD_NUM_RATIO"`
			HoldRatioChange float64 `json:"HOLD_RATIO_CHANGE"`
			EndDate         string  `json:"END_DATE"`
		} `json:"data"`
	} `json:"result"`
}

func (p *EastmoneyProvider) fetchHolders(ctx context.Context, req Request) (*Payload, error) {
	symbol := req.primarySymbol()
	secucode := BareCode(symbol) + "." + strings.ToUpper(symbol[:2])
	url := fmt.Sprintf(`%s?reportName=RPT_F10_EH_FREEHOLDERS&columns=HOLDER_NAME,HOLD_NUM_RATIO,HOLD_RATIO_CHANGE,END_DATE&sortTypes=-1&sortColumns=HOLD_NUM_RATIO&pageSize=10&filter=(SECUCODE="%s")`,
		p.holdersURL, secucode)
	body, err := getUTF8(ctx, p.client, url, nil)
	if err != nil {
		return nil, err
	}

	var resp eastmoneyHoldersResp
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("holders decode for %s: %w", symbol, err)
	}
	if len(resp.Result.Data) == 0 {
		return nil, fmt.Errorf("holders for %s: %w", symbol, ErrEmptyResponse)
	}

	holders := make([]Holder, 0, len(resp.Result.Data))
	for _, h := range resp.Result.Data {
		holders = append(holders, Holder{
			Name:       h.HolderName,
			Ratio:      h.HoldNumRatio,
			ChangePct:  h.HoldRatioChange,
			ReportDate: h.EndDate,
		})
	}
	return &Payload{Kind: KindHolders, Holders: holders}, nil
}

type eastmoneyNewsResp struct {
	Data struct {
		List []struct {
			Title      string `json:"title"`
			NoticeDate string `json:"notice_date"`
			ArtCode    string `json:"art_code"`
		} `json:"list"`
	} `json:"data"`
}

func (p *EastmoneyProvider) fetchNews(ctx context.Context, req Request) (*Payload, error) {
	symbol := req.primarySymbol()
	url := fmt.Sprintf("%s?sr=-1&page_size=20&page_index=1&ann_type=A&stock_list=%s", p.newsURL, BareCode(symbol))
	body, err := getUTF8(ctx, p.client, url, nil)
	if err != nil {
		return nil, err
	}

	var resp eastmoneyNewsResp
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("news decode for %s: %w", symbol, err)
	}
	if len(resp.Data.List) == 0 {
		return nil, fmt.Errorf("news for %s: %w", symbol, ErrEmptyResponse)
	}

	items := make([]NewsItem, 0, len(resp.Data.List))
	for _, n := range resp.Data.List {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", n.NoticeDate, p.loc)
		if err != nil {
			continue
		}
		items = append(items, NewsItem{
			Title:       n.Title,
			PublishedAt: ts,
			URL:         "https://data.eastmoney.com/notices/detail/" + BareCode(symbol) + "/" + n.ArtCode + ".html",
			Source:      "eastmoney",
		})
	}
	if len(items) == 0 {
		return nil, ErrEmptyResponse
	}
	return &Payload{Kind: KindNews, News: items}, nil
}

// Industry looks up the push2 industry label for a symbol. The scoring
// engine uses it to build the sector map for attention spillover; a lookup
// failure just disables that factor for the symbol.
func (p *EastmoneyProvider) Industry(ctx context.Context, symbol string) (string, error) {
	data, err := p.getQuoteData(ctx, symbol)
	if err != nil {
		return "", err
	}
	industry := sval(data, "f127")
	if industry == "" {
		return "", ErrEmptyResponse
	}
	return industry, nil
}
