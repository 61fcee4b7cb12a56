package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	documentSubmittedTotal         atomic.Uint64
	documentProcessingStartedTotal atomic.Uint64
	documentDoneTotal              atomic.Uint64
	documentErrorTotal             atomic.Uint64
	documentAlreadyProcessingTotal atomic.Uint64
	documentStaleClaimTotal        atomic.Uint64

	sweeperRunsTotal      atomic.Uint64
	sweeperRecoveredTotal atomic.Uint64
	sweeperSkippedTotal   atomic.Uint64

	jobsReceivedTotal           atomic.Uint64
	jobsCompletedTotal          atomic.Uint64
	jobsFailedTotal             atomic.Uint64
	jobsDeletedUnrecoverableTot atomic.Uint64

	telegramDuplicateUpdatesTotal atomic.Uint64

	extractionDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 20000, 30000, 60000})
)

func IncDocumentSubmitted() { documentSubmittedTotal.Add(1) }
func IncDocumentProcessingStarted() { documentProcessingStartedTotal.Add(1) }
func IncDocumentDone() { documentDoneTotal.Add(1) }
func IncDocumentError() { documentErrorTotal.Add(1) }
func IncDocumentAlreadyProcessing() { documentAlreadyProcessingTotal.Add(1) }
func IncDocumentStaleClaim() { documentStaleClaimTotal.Add(1) }

func IncSweeperRun() { sweeperRunsTotal.Add(1) }
func AddSweeperRecovered(n int) { sweeperRecoveredTotal.Add(uint64(max(n, 0))) }
func IncSweeperSkipped() { sweeperSkippedTotal.Add(1) }
func IncJobsReceived() { jobsReceivedTotal.Add(1) }
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }
func IncJobsFailed() { jobsFailedTotal.Add(1) }
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverableTot.Add(1) }
func IncTelegramDuplicateUpdate() { telegramDuplicateUpdatesTotal.Add(1) }

// ObserveExtractionDurationMs records one extraction call duration in milliseconds.
func ObserveExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "document_submitted_total", "Documents created by intake", documentSubmittedTotal.Load())
	writeCounter(&buf, "document_processing_started_total", "Processing claims won", documentProcessingStartedTotal.Load())
	writeCounter(&buf, "document_done_total", "Documents committed as done", documentDoneTotal.Load())
	writeCounter(&buf, "document_error_total", "Documents committed as error", documentErrorTotal.Load())
	writeCounter(&buf, "document_already_processing_total", "Process calls rejected by an in-flight claim", documentAlreadyProcessingTotal.Load())
	writeCounter(&buf, "document_stale_claim_total", "Commits rejected because the claim was superseded", documentStaleClaimTotal.Load())
	writeCounter(&buf, "sweeper_runs_total", "Sweeper ticks executed", sweeperRunsTotal.Load())
	writeCounter(&buf, "sweeper_recovered_total", "Stale processing documents returned to pending", sweeperRecoveredTotal.Load())
	writeCounter(&buf, "sweeper_skipped_total", "Sweeper candidates skipped because another attempt held the claim", sweeperSkippedTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Queue jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Queue jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Queue jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_deleted_unrecoverable_total", "Queue jobs dropped as undecodable", jobsDeletedUnrecoverableTot.Load())
	writeCounter(&buf, "telegram_duplicate_updates_total", "Telegram updates ignored as duplicates", telegramDuplicateUpdatesTotal.Load())
	writeHistogram(&buf, "extraction_duration_ms", "Vision extraction duration in milliseconds", extractionDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket whose bound holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
