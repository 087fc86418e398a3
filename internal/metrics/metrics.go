// Package metrics is the backend-neutral metrics surface of a scrape run.
//
// Core code records through a *Recorder; a nil Recorder, or one without a
// backend, drops everything. Backends (see metrics/datadog) decide naming
// and shipping.
package metrics

import (
	"strconv"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives raw metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

// Metric names understood by backends.
const (
	StepTotal           = "menu_step_total"
	StepDuration        = "menu_step_duration_seconds"
	ItemsTotal          = "menu_items_total"
	RetryWaitsTotal     = "menu_retry_waits_total"
	HTTPRequestsTotal   = "menu_http_requests_total"
	HTTPErrorsTotal     = "menu_http_errors_total"
	HTTPRequestDuration = "menu_http_request_duration_seconds"
	HTTPDownloadBytes   = "menu_http_download_bytes"
)

// Item outcomes for RecordItem.
const (
	ItemExtracted = "extracted"
	ItemSkipped   = "skipped"
	ItemCancelled = "cancelled"
)

// Recorder records run metrics against one backend.
type Recorder struct {
	backend Backend
	job     string
}

// NewRecorder returns a Recorder for backend. job becomes the "job" label.
// A nil backend yields a Recorder that drops everything.
func NewRecorder(backend Backend, job string) *Recorder {
	return &Recorder{backend: backend, job: job}
}

func (r *Recorder) enabled() bool {
	return r != nil && r.backend != nil
}

func (r *Recorder) labels(kv ...string) Labels {
	l := Labels{"job": r.job}
	for i := 0; i+1 < len(kv); i += 2 {
		l[kv[i]] = kv[i+1]
	}
	return l
}

// RecordHTTP records one HTTP attempt. status is 0 for transport failures.
// A negative size is not recorded.
func (r *Recorder) RecordHTTP(status int, err error, requestDur time.Duration, size int64) {
	if !r.enabled() {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	l := r.labels("status", code)

	r.backend.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status >= 300 {
		r.backend.IncCounter(HTTPErrorsTotal, 1, l)
	}
	if requestDur >= 0 {
		r.backend.ObserveHistogram(HTTPRequestDuration, requestDur.Seconds(), l)
	}
	if size >= 0 {
		r.backend.ObserveHistogram(HTTPDownloadBytes, float64(size), l)
	}
}

// RecordStep records one pipeline step ("listing", "discover", "item",
// "reconcile", "persist", "mirror") with its outcome and duration.
func (r *Recorder) RecordStep(step string, err error, d time.Duration) {
	if !r.enabled() {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := r.labels("step", step, "status", status)
	r.backend.IncCounter(StepTotal, 1, l)
	r.backend.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordItem counts one product item by outcome (ItemExtracted, ItemSkipped,
// ItemCancelled).
func (r *Recorder) RecordItem(outcome string) {
	if !r.enabled() {
		return
	}
	r.backend.IncCounter(ItemsTotal, 1, r.labels("outcome", outcome))
}

// RecordWait counts one retry wait by kind ("backoff" or "cooldown").
func (r *Recorder) RecordWait(kind string) {
	if !r.enabled() {
		return
	}
	r.backend.IncCounter(RetryWaitsTotal, 1, r.labels("kind", kind))
}

// Flush flushes the backend when it buffers observations.
func (r *Recorder) Flush() error {
	if !r.enabled() {
		return nil
	}
	if f, ok := r.backend.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
