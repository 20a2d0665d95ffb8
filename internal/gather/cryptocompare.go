package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"basisarb/internal/config"
	"basisarb/internal/domain"
	"basisarb/internal/util"
)

var _ BarSource = (*CryptoCompareSource)(nil)

// histoLimit is the maximum bars CryptoCompare returns per request.
const histoLimit = 2000

// CryptoCompareSource fetches spot BTC/USD bars from the public CryptoCompare
// REST API. It is the fallback spot source when Alpaca crypto data is not
// available.
type CryptoCompareSource struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *util.RateLimiter
	granularity domain.Granularity
	log         *slog.Logger
}

// NewCryptoCompareSource creates a source for the given granularity. Daily
// runs use the histoday endpoint; intraday runs use histominute aggregated
// into 15-minute bars.
func NewCryptoCompareSource(cfg config.CryptoCompare, g domain.Granularity) *CryptoCompareSource {
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 40
	}
	return &CryptoCompareSource{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     util.NewRateLimiter(perMin),
		granularity: g,
		log:         slog.Default().With("source", "cryptocompare"),
	}
}

// Name returns the source identifier.
func (s *CryptoCompareSource) Name() string { return "cryptocompare:BTC/USD" }

// histoResponse mirrors the CryptoCompare v2 histo payload.
type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []histoBar `json:"Data"`
	} `json:"Data"`
}

type histoBar struct {
	Time     int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	VolumeTo float64 `json:"volumeto"`
}

// Bars fetches BTC/USD bars within the range, paging backwards with toTs
// until the range start is covered.
func (s *CryptoCompareSource) Bars(ctx context.Context, r DateRange) ([]Bar, error) {
	endpoint := "/data/v2/histoday"
	aggregate := 0
	step := 24 * time.Hour
	if s.granularity == domain.GranularityIntraday {
		endpoint = "/data/v2/histominute"
		aggregate = 15
		step = 15 * time.Minute
	}

	seen := make(map[int64]Bar)
	toTs := r.End.Unix()
	startTs := r.Start.Unix()

	for toTs >= startTs {
		page, err := s.fetchPage(ctx, endpoint, aggregate, toTs)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, hb := range page {
			if hb.Time < startTs || hb.Time > r.End.Unix() {
				continue
			}
			// Zero-price rows appear at the edge of the API's history.
			if hb.Close <= 0 {
				continue
			}
			seen[hb.Time] = Bar{
				Timestamp: time.Unix(hb.Time, 0).UTC(),
				Open:      hb.Open,
				High:      hb.High,
				Low:       hb.Low,
				Close:     hb.Close,
				Volume:    hb.VolumeTo,
			}
		}

		oldest := page[0].Time
		if oldest <= startTs {
			break
		}
		next := oldest - int64(step.Seconds())
		if next >= toTs {
			// No backwards progress; the history is exhausted.
			break
		}
		toTs = next
	}

	bars := make([]Bar, 0, len(seen))
	for _, b := range seen {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	s.log.Info("fetched bars", "count", len(bars), "granularity", s.granularity)
	return bars, nil
}

// fetchPage requests one histo page ending at toTs, honoring the rate limit
// and retrying transient failures.
func (s *CryptoCompareSource) fetchPage(ctx context.Context, endpoint string, aggregate int, toTs int64) ([]histoBar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("fsym", "BTC")
	q.Set("tsym", "USD")
	q.Set("limit", strconv.Itoa(histoLimit))
	q.Set("toTs", strconv.FormatInt(toTs, 10))
	if aggregate > 0 {
		q.Set("aggregate", strconv.Itoa(aggregate))
	}
	reqURL := s.baseURL + endpoint + "?" + q.Encode()

	var page []histoBar
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cryptocompare: status %d", resp.StatusCode)
		}

		var hr histoResponse
		if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
			return fmt.Errorf("cryptocompare: decode: %w", err)
		}
		if hr.Response != "Success" {
			return fmt.Errorf("cryptocompare: %s", hr.Message)
		}
		page = hr.Data.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
