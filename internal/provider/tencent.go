package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/sawpanic/equityrun/internal/domain"
)

// TencentProvider serves realtime quotes from qt.gtimg.cn (GBK tilde-delimited
// strings, batched) and forward-adjusted daily klines from web.ifzq.gtimg.cn.
// It is the primary tier for both kinds.
type TencentProvider struct {
	client   *http.Client
	quoteURL string
	klineURL string
	loc      *time.Location
}

// NewTencentProvider builds the adapter. Base URLs are overridable for tests.
func NewTencentProvider(client *http.Client, loc *time.Location) *TencentProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TencentProvider{
		client:   client,
		quoteURL: "https://qt.gtimg.cn/q=",
		klineURL: "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get",
		loc:      loc,
	}
}

func (p *TencentProvider) Name() string { return "tencent" }

func (p *TencentProvider) Supports(kind FetchKind) bool {
	return kind == KindRealtimeQuote || kind == KindHistoryWindow
}

func (p *TencentProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	switch req.Kind {
	case KindRealtimeQuote:
		return p.fetchQuotes(ctx, req)
	case KindHistoryWindow:
		return p.fetchKlines(ctx, req)
	default:
		return nil, ErrUnsupportedKind
	}
}

func (p *TencentProvider) fetchQuotes(ctx context.Context, req Request) (*Payload, error) {
	symbols := req.Symbols
	if len(symbols) == 0 && req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	if len(symbols) == 0 {
		return nil, ErrEmptyResponse
	}

	body, err := getGBK(ctx, p.client, p.quoteURL+strings.Join(symbols, ","), nil)
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
			continue // one bad line must not poison the batch
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, ErrEmptyResponse
	}
	return &Payload{Kind: KindRealtimeQuote, Quotes: quotes}, nil
}

// parseQuoteLine decodes one v_sh600519="51~name~code~..." record. The
// tilde-delimited layout: 3 price, 4 prev close, 5 open, 6 volume (lots),
// 9..18 bid ladder, 19..28 ask ladder, 30 timestamp, 32 pct change,
// 33 high, 34 low, 37 turnover (1e4 CNY), 38 turnover rate, 49 volume ratio.
func (p *TencentProvider) parseQuoteLine(line string) (domain.QuoteSnapshot, error) {
	eq := strings.Index(line, "=")
	if eq < 0 || !strings.HasPrefix(line, "v_") {
		return domain.QuoteSnapshot{}, fmt.Errorf("malformed quote line")
	}
	symbol := line[2:eq]
	f := strings.Split(strings.Trim(line[eq+1:], `"`), "~")
	if len(f) < 39 {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: %d fields", symbol, len(f))
	}

	ts, err := time.ParseInLocation("20060102150405", f[30], p.loc)
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: bad timestamp %q", symbol, f[30])
	}

	q := domain.QuoteSnapshot{
		Symbol:       symbol,
		Name:         f[1],
		Timestamp:    ts,
		Price:        num(f[3]),
		PrevClose:    num(f[4]),
		Open:         num(f[5]),
		Volume:       num(f[6]) * 100, // lots to shares
		PctChange:    num(f[32]),
		High:         num(f[33]),
		Low:          num(f[34]),
		Turnover:     num(f[37]) * 1e4,
		TurnoverRate: num(f[38]),
	}
	if len(f) > 49 {
		q.VolumeRatio = num(f[49])
	}
	for i := 0; i < 5; i++ {
		q.Bids = append(q.Bids, domain.BookLevel{Price: num(f[9+2*i]), Size: num(f[10+2*i]) * 100})
		q.Asks = append(q.Asks, domain.BookLevel{Price: num(f[19+2*i]), Size: num(f[20+2*i]) * 100})
	}
	if q.Price <= 0 {
		return domain.QuoteSnapshot{}, fmt.Errorf("quote line for %s: non-positive price", symbol)
	}
	return q, nil
}

type tencentKlineResp struct {
	Code int                                   `json:"code"`
	Data map[string]map[string]json.RawMessage `json:"data"`
}

func (p *TencentProvider) fetchKlines(ctx context.Context, req Request) (*Payload, error) {
	symbol := req.primarySymbol()
	days := req.Days
	if days <= 0 {
		days = 320
	}

	url := fmt.Sprintf("%s?param=%s,day,,,%d,qfq", p.klineURL, symbol, days)
	body, err := getUTF8(ctx, p.client, url, nil)
	if err != nil {
		return nil, err
	}

	var resp tencentKlineResp
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("kline decode for %s: %w", symbol, err)
	}
	series, ok := resp.Data[symbol]
	if resp.Code != 0 || !ok {
		return nil, fmt.Errorf("kline for %s: %w", symbol, ErrEmptyResponse)
	}

	// Adjusted series lives under "qfqday"; unadjusted fallback under "day".
	raw, ok := series["qfqday"]
	if !ok {
		raw = series["day"]
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("kline rows for %s: %w", symbol, ErrEmptyResponse)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		// Row layout: date, open, close, high, low, volume(lots).
		if len(row) < 6 {
			continue
		}
		cols := make([]string, len(row))
		for i, c := range row {
			var s string
			if json.Unmarshal(c, &s) != nil {
				var n float64
				if json.Unmarshal(c, &n) != nil {
					continue
				}
				s = strconv.FormatFloat(n, 'f', -1, 64)
			}
			cols[i] = s
		}
		t, err := time.ParseInLocation("2006-01-02", cols[0], p.loc)
		if err != nil {
			continue
		}
		bars = append(bars, domain.Bar{
			Time:   t,
			Open:   num(cols[1]),
			Close:  num(cols[2]),
			High:   num(cols[3]),
			Low:    num(cols[4]),
			Volume: num(cols[5]) * 100,
		})
	}
	if len(bars) == 0 {
		return nil, ErrEmptyResponse
	}

	w := domain.NewPriceWindowSorted(symbol, bars)
	return &Payload{Kind: KindHistoryWindow, Window: &w}, nil
}

// num parses a float field, treating blanks and junk as zero. Upstream quote
// strings routinely carry empty optional fields.
func num(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// getGBK issues a GET and transcodes the GBK body to UTF-8.
func getGBK(ctx context.Context, client *http.Client, url string, headers map[string]string) (string, error) {
	return get(ctx, client, url, headers, true)
}

// getUTF8 issues a GET for an already-UTF-8 body.
func getUTF8(ctx context.Context, client *http.Client, url string, headers map[string]string) (string, error) {
	return get(ctx, client, url, headers, false)
}

func get(ctx context.Context, client *http.Client, url string, headers map[string]string, gbk bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}

	var r io.Reader = resp.Body
	if gbk {
		r = transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder())
	}
	body, err := io.ReadAll(io.LimitReader(r, 8<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
