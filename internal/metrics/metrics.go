package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Collector считает события бота. Методы безопасны для nil-получателя.
type Collector struct {
	requests       uint64
	errors         uint64
	updates        uint64
	rateLimited    uint64
	submissions    uint64
	claims         uint64
	claimConflicts uint64
	approvals      uint64
	rejections     uint64
	releases       uint64
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) IncRequests()       { c.inc(&c.requests) }
func (c *Collector) IncErrors()         { c.inc(&c.errors) }
func (c *Collector) IncUpdates()        { c.inc(&c.updates) }
func (c *Collector) IncRateLimited()    { c.inc(&c.rateLimited) }
func (c *Collector) IncSubmissions()    { c.inc(&c.submissions) }
func (c *Collector) IncClaims()         { c.inc(&c.claims) }
func (c *Collector) IncClaimConflicts() { c.inc(&c.claimConflicts) }
func (c *Collector) IncApprovals()      { c.inc(&c.approvals) }
func (c *Collector) IncRejections()     { c.inc(&c.rejections) }
func (c *Collector) IncReleases()       { c.inc(&c.releases) }

func (c *Collector) inc(counter *uint64) {
	if c == nil {
		return
	}
	atomic.AddUint64(counter, 1)
}

// Snapshot содержит срез счетчиков для экспорта.
type Snapshot struct {
	Requests       uint64
	Errors         uint64
	Updates        uint64
	RateLimited    uint64
	Submissions    uint64
	Claims         uint64
	ClaimConflicts uint64
	Approvals      uint64
	Rejections     uint64
	Releases       uint64
}

func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Requests:       atomic.LoadUint64(&c.requests),
		Errors:         atomic.LoadUint64(&c.errors),
		Updates:        atomic.LoadUint64(&c.updates),
		RateLimited:    atomic.LoadUint64(&c.rateLimited),
		Submissions:    atomic.LoadUint64(&c.submissions),
		Claims:         atomic.LoadUint64(&c.claims),
		ClaimConflicts: atomic.LoadUint64(&c.claimConflicts),
		Approvals:      atomic.LoadUint64(&c.approvals),
		Rejections:     atomic.LoadUint64(&c.rejections),
		Releases:       atomic.LoadUint64(&c.releases),
	}
}

type Handler struct {
	collector *Collector
}

func NewHandler(collector *Collector) *Handler {
	return &Handler{collector: collector}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s := h.collector.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "driver_bot_requests_total", "Total number of HTTP requests.", s.Requests)
	writeCounter(w, "driver_bot_errors_total", "Total number of 5xx HTTP responses.", s.Errors)
	writeCounter(w, "driver_bot_updates_total", "Total number of Telegram updates handled.", s.Updates)
	writeCounter(w, "driver_bot_rate_limited_total", "Total number of inbound updates dropped by the rate limiter.", s.RateLimited)
	writeCounter(w, "driver_bot_submissions_total", "Total number of submissions sent to review.", s.Submissions)
	writeCounter(w, "driver_bot_claims_total", "Total number of successful review claims.", s.Claims)
	writeCounter(w, "driver_bot_claim_conflicts_total", "Total number of rejected review claims.", s.ClaimConflicts)
	writeCounter(w, "driver_bot_approvals_total", "Total number of approved submissions.", s.Approvals)
	writeCounter(w, "driver_bot_rejections_total", "Total number of rejected submissions.", s.Rejections)
	writeCounter(w, "driver_bot_releases_total", "Total number of released review claims.", s.Releases)
}

func writeCounter(w http.ResponseWriter, name, help string, value uint64) {
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", name)
	_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
}
