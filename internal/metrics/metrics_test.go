package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordScrape(t *testing.T) {
	before := testutil.ToFloat64(scrapes.WithLabelValues(OutcomeTimeout))
	RecordScrape(OutcomeTimeout, 0)
	after := testutil.ToFloat64(scrapes.WithLabelValues(OutcomeTimeout))
	if after != before+1 {
		t.Fatalf("timeout scrapes = %v, want %v", after, before+1)
	}
}

func TestScrapeStarted(t *testing.T) {
	done := ScrapeStarted()
	if got := testutil.ToFloat64(scrapesInFlight); got != 1 {
		t.Fatalf("inflight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(scrapesInFlight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest("get", "/rastrear/{numero_nf}", "200", 10*time.Millisecond)
	RecordCacheLookup("hit")
	RecordRateLimited()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"jamef_tracker_http_requests_total",
		"jamef_tracker_cache_lookups_total",
		"jamef_tracker_http_rate_limited_total",
		`path="/rastrear/{numero_nf}"`,
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
