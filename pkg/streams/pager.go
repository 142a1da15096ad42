package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/datalift/nikohealth-connector/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// DefaultPageSize is the fixed page size requested from the API.
const DefaultPageSize = 100

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "niko_pages_fetched_total",
		Help: "Total pages fetched by stream",
	}, []string{"stream"})

	recordsExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "niko_records_extracted_total",
		Help: "Total records extracted by stream",
	}, []string{"stream"})
)

// PageToken is the request state for the next page. The API has no
// server-side cursor; the client derives the next zero-based page index
// from the total count and its own page arithmetic.
type PageToken struct {
	PageIndex int
}

// Pager drives the count-based pagination loop shared by all streams.
// Requests are issued strictly one at a time.
type Pager struct {
	transport *client.Client
	stream    string
	pageSize  int
	logger    zerolog.Logger
}

// NewPager creates a pager for the named stream.
func NewPager(transport *client.Client, stream string) Pager {
	return Pager{
		transport: transport,
		stream:    stream,
		pageSize:  DefaultPageSize,
		logger:    log.With().Str("component", "pager").Str("stream", stream).Logger(),
	}
}

// RequestHeaders returns the headers sent on every page request.
func (p *Pager) RequestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

// RequestParams returns the query parameters for a page request. A nil
// token requests the first page.
func (p *Pager) RequestParams(token *PageToken) url.Values {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(p.pageSize))
	if token != nil {
		params.Set("pageIndex", strconv.Itoa(token.PageIndex))
	}
	return params
}

// NextPageToken derives the next page token from the previous request URL
// and the response body. Returns nil when pagination is exhausted: another
// page exists only while the records fetched so far, (pageIndex+1)*pageSize,
// have not covered the reported total Count.
func (p *Pager) NextPageToken(prevURL *url.URL, body []byte) *PageToken {
	prevPage := 0
	if raw := prevURL.Query().Get("pageIndex"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			prevPage = n
		}
	}

	count := gjson.GetBytes(body, "Count").Int()
	if count > 0 && int64((prevPage+1)*p.pageSize) < count {
		return &PageToken{PageIndex: prevPage + 1}
	}

	return nil
}

// ParseItems extracts the Items field from a page body. The API sometimes
// returns a bare object where a list is expected; a single object is
// normalized to a one-element slice. Numbers are decoded as json.Number so
// identifiers survive the round trip into URL paths.
func ParseItems(body []byte) ([]Record, error) {
	items := gjson.GetBytes(body, "Items")
	if !items.Exists() {
		return nil, fmt.Errorf("response body missing Items field")
	}
	if items.Type == gjson.Null {
		return nil, nil
	}

	if items.IsArray() {
		var records []Record
		if err := decodeNumeric(items.Raw, &records); err != nil {
			return nil, fmt.Errorf("decode Items array: %w", err)
		}
		return records, nil
	}

	var record Record
	if err := decodeNumeric(items.Raw, &record); err != nil {
		return nil, fmt.Errorf("decode Items object: %w", err)
	}
	return []Record{record}, nil
}

func decodeNumeric(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// ReadPath paginates a resource path to exhaustion, emitting every record.
func (p *Pager) ReadPath(ctx context.Context, path string, emit EmitFunc) error {
	var token *PageToken
	pages, records := 0, 0

	for {
		req, err := p.transport.NewRequest(ctx, http.MethodGet, path, p.RequestParams(token))
		if err != nil {
			return err
		}
		for key, values := range p.RequestHeaders() {
			for _, v := range values {
				req.Header.Set(key, v)
			}
		}

		p.logger.Debug().
			Str("endpoint", path).
			Int("page_index", pageIndexOf(token)).
			Msg("Fetching page")

		resp, err := p.transport.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", path, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s page body: %w", path, err)
		}

		recs, err := ParseItems(body)
		if err != nil {
			return fmt.Errorf("parse %s page: %w", path, err)
		}

		for _, rec := range recs {
			if err := emit(rec); err != nil {
				return err
			}
		}

		pages++
		records += len(recs)
		pagesFetchedTotal.WithLabelValues(p.stream).Inc()
		recordsExtractedTotal.WithLabelValues(p.stream).Add(float64(len(recs)))

		token = p.NextPageToken(req.URL, body)
		if token == nil {
			break
		}
	}

	p.logger.Debug().
		Str("endpoint", path).
		Int("pages", pages).
		Int("records", records).
		Msg("Pagination complete")

	return nil
}

func pageIndexOf(token *PageToken) int {
	if token == nil {
		return 0
	}
	return token.PageIndex
}
