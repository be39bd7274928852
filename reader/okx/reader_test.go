package okx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"derivflow/internal/fetch"
	"derivflow/logger"
	"derivflow/models"
)

func newTestReader(t *testing.T, handler http.Handler) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := fetch.NewClient(5 * time.Second)
	return NewReader(client, []string{srv.URL}, logger.GetLogger())
}

func msAt(dayOffset, hour int) int64 {
	return time.Date(2026, 8, 1, hour, 0, 0, 0, time.UTC).AddDate(0, 0, dayOffset).UnixMilli()
}

func TestFundingDailyUsesFundingTime(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/public/funding-rate-history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT-SWAP" {
			t.Errorf("instId = %q, want BTC-USDT-SWAP", got)
		}
		if r.URL.Query().Get("after") != "" {
			fmt.Fprint(w, `{"code":"0","msg":"","data":[]}`)
			return
		}
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[`+
			`{"fundingRate":"0.0003","fundingTime":"%d"},`+
			`{"fundingRate":"0.0001","fundingTime":"%d"}`+
			`]}`, msAt(1, 8), msAt(0, 8))
	}))

	points, err := reader.FundingDaily(context.Background(), "BTC-USDT-SWAP", 10)
	if err != nil {
		t.Fatalf("FundingDaily: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Date != "2026-08-01" || points[1].Date != "2026-08-02" {
		t.Fatalf("dates not ascending: %+v", points)
	}
}

func TestFundingDailyFallsBackToTS(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "" {
			fmt.Fprint(w, `{"code":"0","data":[]}`)
			return
		}
		fmt.Fprintf(w, `{"code":"0","data":[{"fundingRate":"0.0002","ts":"%d"}]}`, msAt(0, 16))
	}))

	points, err := reader.FundingDaily(context.Background(), "BTC-USDT-SWAP", 10)
	if err != nil {
		t.Fatalf("FundingDaily: %v", err)
	}
	if len(points) != 1 || points[0].Date != "2026-08-01" {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestFundingDailyEnvelopeError(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`)
	}))

	_, err := reader.FundingDaily(context.Background(), "NOPE-SWAP", 10)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *models.ProviderError", err)
	}
	if perr.Code != "51001" || perr.Provider != "okx" {
		t.Errorf("unexpected provider error: %+v", perr)
	}
}

func TestOpenInterestDailyPrefers1D(t *testing.T) {
	var periods []string
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		periods = append(periods, period)
		fmt.Fprintf(w, `{"code":"0","data":[`+
			`["%d","51000","2550","51000000"],`+
			`["%d","50000","2500","50000000"]`+
			`]}`, msAt(1, 0), msAt(0, 0))
	}))

	points, err := reader.OpenInterestDaily(context.Background(), "BTC-USDT-SWAP", 30)
	if err != nil {
		t.Fatalf("OpenInterestDaily: %v", err)
	}
	if len(periods) != 1 || periods[0] != "1D" {
		t.Fatalf("periods requested = %v, want [1D]", periods)
	}
	if len(points) != 2 || points[0].OpenInterest != 50000 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestOpenInterestDailyFallsBackTo8H(t *testing.T) {
	var periods []string
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		periods = append(periods, period)
		if period == "1D" {
			fmt.Fprint(w, `{"code":"0","data":[]}`)
			return
		}
		// Two 8H buckets on the same day: last-of-day must win.
		fmt.Fprintf(w, `{"code":"0","data":[`+
			`["%d","52000","2600","52000000"],`+
			`["%d","50000","2500","50000000"]`+
			`]}`, msAt(0, 16), msAt(0, 8))
	}))

	points, err := reader.OpenInterestDaily(context.Background(), "BTC-USDT-SWAP", 30)
	if err != nil {
		t.Fatalf("OpenInterestDaily: %v", err)
	}
	if len(periods) != 2 || periods[1] != "8H" {
		t.Fatalf("periods requested = %v, want [1D 8H]", periods)
	}
	if len(points) != 1 || points[0].OpenInterest != 52000 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestOpenInterestDailyBothPeriodsFail(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := reader.OpenInterestDaily(context.Background(), "BTC-USDT-SWAP", 30)
	var exhausted *models.BasesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *models.BasesExhaustedError", err)
	}
}
