package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// SinaProvider is the second realtime tier, backed by hq.sinajs.cn. The
// endpoint returns GBK comma-delimited assignments and rejects requests
// without a finance.sina.com.cn referer. Realtime quotes only.
type SinaProvider struct {
	client   *http.Client
	quoteURL string
	referer  string
	loc      *time.Location
}

func NewSinaProvider(client *http.Client, loc *time.Location) *SinaProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SinaProvider{
		client:   client,
		quoteURL: "https://hq.sinajs.cn/list=",
		referer:  "https://finance.sina.com.cn",
		loc:      loc,
	}
}

func (p *SinaProvider) Name() string { return "sina" }

func (p *SinaProvider) Supports(kind FetchKind) bool { return kind == KindRealtimeQuote }

func (p *SinaProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if req.Kind != KindRealtimeQuote {
		return nil, ErrUnsupportedKind
	}
	symbols := req.Symbols
	if len(symbols) == 0 && req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	if len(symbols) == 0 {
		return nil, ErrEmptyResponse
	}

	url := p.quoteURL + strings.Join(symbols, ",")
	body, err := getGBK(ctx, p.client, url, map[string]string{"Referer": p.referer})
	if err != nil {
		return nil, err
	}

	quotes := make([]domain.QuoteSnapshot, 0, len(symbols))
	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		q, err := p.parseQuoteLine(line)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, ErrEmptyResponse
	}
	return &Payload{Kind: KindRealtimeQuote, Quotes: quotes}, nil
}

// parseQuoteLine decodes one var hq_str_sh600519="name,open,prevclose,price,
// high,low,bid,ask,volume,turnover,b1vol,b1,...,s5,date,time,status" record.
func (p *SinaProvider) parseQuoteLine(line string) (domain.QuoteSnapshot, error) {
	const marker = "hq_str_"
	start := strings.Index(line, marker)
	eq := strings.Index(line, "=")
	if start < 0 || eq < 0 || eq < start {
		return domain.QuoteSnapshot{}, fmt.Errorf("malformed quote line")
	}
	symbol := line[start+len(marker) : eq]
	f := strings.Split(strings.Trim(line[eq+1:], `"`), ",")
	if len(f) < 32 {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: %d fields", symbol, len(f))
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", f[30]+" "+f[31], p.loc)
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: bad timestamp", symbol)
	}

	q := domain.QuoteSnapshot{
		Symbol:    symbol,
		Name:      f[0],
		Timestamp: ts,
		Open:      num(f[1]),
		PrevClose: num(f[2]),
		Price:     num(f[3]),
		High:      num(f[4]),
		Low:       num(f[5]),
		Volume:    num(f[8]),
		Turnover:  num(f[9]),
	}
	if q.PrevClose > 0 {
		q.PctChange = (q.Price/q.PrevClose - 1.0) * 100
	}
	// Fields 10..29 alternate volume,price for buy1..5 then sell1..5.
	for i := 0; i < 5; i++ {
		q.Bids = append(q.Bids, domain.BookLevel{Size: num(f[10+2*i]), Price: num(f[11+2*i])})
		q.Asks = append(q.Asks, domain.BookLevel{Size: num(f[20+2*i]), Price: num(f[21+2*i])})
	}
	if q.Price <= 0 {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: non-positive price", symbol)
	}
	return q, nil
}
