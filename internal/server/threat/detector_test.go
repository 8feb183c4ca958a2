package threat

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink[T any] struct {
	mu      sync.Mutex
	entries []T
}

func (f *fakeSink[T]) Record(e T) {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
}

func (f *fakeSink[T]) all() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]T(nil), f.entries...)
}

const browser = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"

func newTestDetector(t *testing.T) (*Detector, *fakeSink[models.SecurityEvent], *fakeSink[models.Alert], *clockx.FakeClock) {
	t.Helper()
	clock := clockx.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	events := &fakeSink[models.SecurityEvent]{}
	alerts := &fakeSink[models.Alert]{}
	d := NewDetector(Options{}, events, alerts, clock, logging.Nop())
	return d, events, alerts, clock
}

func TestDetector_MaliciousPath(t *testing.T) {
	d, _, _, _ := newTestDetector(t)

	tests := []struct {
		path string
		want bool
	}{
		{"/wp-admin/setup.php", true},
		{"/.env", true},
		{"/.git/config", true},
		{"/ADMIN", true},
		{"/admin/api/users", false},
		{"/api/admin/stats", false},
		{"/backup.sql", true},
		{"/site.tar", true},
		{"/index.php~", true},
		{"/package.json", false},
		{"/package.json.bak", true},
		{"/api/projects", false},
		{"/api/jsonws/invoke", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, d.MaliciousPath(tt.path))
		})
	}
}

func TestSuspiciousAgent(t *testing.T) {
	assert.True(t, SuspiciousAgent(""))
	assert.True(t, SuspiciousAgent("-"))
	assert.True(t, SuspiciousAgent("sqlmap/1.7"))
	assert.True(t, SuspiciousAgent("curl/8.0"))
	assert.True(t, SuspiciousAgent("go-http-client/1.1"))
	assert.False(t, SuspiciousAgent("mozilla/5.0 (compatible; googlebot/2.1)"))
	assert.False(t, SuspiciousAgent("mozilla/5.0 firefox/128.0"))
}

func TestDetector_ProbePathReturns404(t *testing.T) {
	d, events, _, _ := newTestDetector(t)

	v := d.Inspect(context.Background(), Request{IP: "1.2.3.4", Method: "GET", Path: "/wp-admin", UserAgent: browser})
	assert.True(t, v.Rejected)
	assert.Equal(t, http.StatusNotFound, v.Status)
	assert.Equal(t, models.ThreatMaliciousPath, v.Type)

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, common.HashIP("1.2.3.4"), got[0].IPHash)
	assert.Equal(t, "/wp-admin", got[0].Path)
}

func TestDetector_SQLInjectionInQuery(t *testing.T) {
	d, events, _, _ := newTestDetector(t)

	v := d.Inspect(context.Background(), Request{
		IP:        "5.6.7.8",
		Method:    "GET",
		Path:      "/api/projects",
		RawQuery:  "name=%27%20OR%20%271%27%3D%271",
		UserAgent: browser,
	})
	assert.Equal(t, http.StatusBadRequest, v.Status)
	assert.Equal(t, models.ThreatSQLInjection, v.Type)

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, models.ThreatSQLInjection, got[0].Type)
	assert.Equal(t, common.HashIP("5.6.7.8"), got[0].IPHash)
}

func TestDetector_XSSInQuery(t *testing.T) {
	d, _, _, _ := newTestDetector(t)

	v := d.Inspect(context.Background(), Request{
		IP:        "5.6.7.8",
		Path:      "/api/search",
		RawQuery:  "q=%3Cscript%3Ealert(1)%3C/script%3E",
		UserAgent: browser,
	})
	// alert( is on the SQL list too, which is checked first
	assert.Equal(t, http.StatusBadRequest, v.Status)

	v = d.Inspect(context.Background(), Request{
		IP:        "5.6.7.9",
		Path:      "/api/search",
		RawQuery:  "next=javascript:void(0)",
		UserAgent: browser,
	})
	assert.Equal(t, models.ThreatXSS, v.Type)
}

func TestDetector_CleanRequestPasses(t *testing.T) {
	d, events, _, _ := newTestDetector(t)

	v := d.Inspect(context.Background(), Request{IP: "9.9.9.9", Path: "/api/projects", RawQuery: "page=2&sort=name", UserAgent: browser})
	assert.False(t, v.Rejected)
	assert.Empty(t, events.all())
}

func TestDetector_BlocksAtThresholdAndResets(t *testing.T) {
	d, events, alerts, clock := newTestDetector(t)
	ctx := context.Background()
	probe := Request{IP: "6.6.6.6", Path: "/.env", UserAgent: browser}

	for i := 0; i < DefaultThreshold; i++ {
		v := d.Inspect(ctx, probe)
		assert.Equal(t, http.StatusNotFound, v.Status)
	}
	require.Len(t, alerts.all(), 1)
	assert.Equal(t, "threat", alerts.all()[0].Source)

	clean := Request{IP: "6.6.6.6", Path: "/api/projects", UserAgent: browser}
	v := d.Inspect(ctx, clean)
	assert.Equal(t, http.StatusForbidden, v.Status)
	assert.Equal(t, models.ThreatBlockedIP, v.Type)
	assert.Equal(t, 1, d.Stats().BlockedIPs)

	clock.Advance(DefaultBlockDuration)
	v = d.Inspect(ctx, clean)
	assert.False(t, v.Rejected)

	// counter starts again from zero
	d.Inspect(ctx, probe)
	v = d.Inspect(ctx, clean)
	assert.False(t, v.Rejected)

	assert.Equal(t, DefaultThreshold+2, len(events.all()))
}

func TestDetector_Stats(t *testing.T) {
	d, _, _, _ := newTestDetector(t)
	ctx := context.Background()

	d.Inspect(ctx, Request{IP: "1.1.1.1", Path: "/.git/HEAD", UserAgent: browser})
	d.Inspect(ctx, Request{IP: "2.2.2.2", Path: "/", UserAgent: "nikto"})

	s := d.Stats()
	assert.Equal(t, 2, s.Detections)
	assert.Equal(t, 1, s.ByType[models.ThreatMaliciousPath])
	assert.Equal(t, 1, s.ByType[models.ThreatBadUserAgent])
	assert.Equal(t, 2, s.TrackedIPs)
	assert.Equal(t, 0, s.BlockedIPs)
}
