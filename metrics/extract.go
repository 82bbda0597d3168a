// Package metrics has prometheus metric variables/functions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mjl-/mex/extract"
)

var (
	metricExtract = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mex_extract_duration_seconds",
			Help:    "Extraction calls.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5},
		},
		[]string{
			"result", // "attachments" or "none"
		},
	)
	metricAttachments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mex_extract_attachments_total",
			Help: "Attachments extracted from messages.",
		},
	)
	metricSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mex_extract_parts_skipped_total",
			Help: "Message parts skipped during extraction, per reason.",
		},
		[]string{"reason"},
	)
	metricPDFFindings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mex_extract_pdf_findings_total",
			Help: "Advisory findings from PDF structure checks on extracted attachments.",
		},
	)
)

// ExtractObserve tracks the result of an extraction call in metrics.
func ExtractObserve(nattachments int, diag extract.Diagnostics, start time.Time) {
	result := "none"
	if nattachments > 0 {
		result = "attachments"
	}
	metricExtract.WithLabelValues(result).Observe(float64(time.Since(start)) / float64(time.Second))
	metricAttachments.Add(float64(nattachments))

	skips := map[string]int{
		"noheaders":     diag.NoHeaders,
		"notattachment": diag.NotAttachment,
		"notbase64":     diag.NotBase64,
		"badbase64":     diag.BadBase64,
		"noboundary":    diag.NoBoundary,
		"depthexceeded": diag.DepthExceeded,
	}
	for reason, n := range skips {
		if n > 0 {
			metricSkipped.WithLabelValues(reason).Add(float64(n))
		}
	}
	metricPDFFindings.Add(float64(diag.PDFFindings))
}
