package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsStatus(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues("GET", RouteZip, "404")
	before := testutil.ToFloat64(counter)

	routeOf := func(*http.Request) string { return RouteZip }
	h := Middleware(routeOf)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/download_folder/missing", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}

func TestRecordZipArchive(t *testing.T) {
	bytesBefore := testutil.ToFloat64(zipArchiveBytes)
	entriesBefore := testutil.ToFloat64(zipEntriesTotal)
	okBefore := testutil.ToFloat64(zipArchivesTotal.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(zipArchivesTotal.WithLabelValues("error"))

	RecordZipArchive("success", 1024, 3, 10*time.Millisecond)
	RecordZipArchive("error", 0, 0, 0)

	if d := testutil.ToFloat64(zipArchiveBytes) - bytesBefore; d != 1024 {
		t.Errorf("bytes delta = %v", d)
	}
	if d := testutil.ToFloat64(zipEntriesTotal) - entriesBefore; d != 3 {
		t.Errorf("entries delta = %v", d)
	}
	if d := testutil.ToFloat64(zipArchivesTotal.WithLabelValues("success")) - okBefore; d != 1 {
		t.Errorf("success delta = %v", d)
	}
	if d := testutil.ToFloat64(zipArchivesTotal.WithLabelValues("error")) - errBefore; d != 1 {
		t.Errorf("error delta = %v", d)
	}
}
