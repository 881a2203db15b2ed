package loadtest

import (
	"math"
	"slices"
	"strconv"
	"time"
)

// Outcome classifies one request.
type Outcome int

const (
	// OutcomeSuccess is a 200 response.
	OutcomeSuccess Outcome = iota
	// OutcomeFailed is a non-200 response, a timeout or any unexpected error.
	OutcomeFailed
	// OutcomeRejected is a connection-level failure.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Report aggregates a run. ResponseTimes holds successful requests only.
type Report struct {
	URL            string
	FailMode       string
	ToggleResponse string
	Total          int
	Success        int
	Failed         int
	Rejected       int
	Retried        int
	ResponseTimes  []time.Duration
	Elapsed        time.Duration
}

func (r *Report) record(o Outcome, elapsed time.Duration) {
	r.Total++
	switch o {
	case OutcomeSuccess:
		r.Success++
		r.ResponseTimes = append(r.ResponseTimes, elapsed)
	case OutcomeFailed:
		r.Failed++
	case OutcomeRejected:
		r.Rejected++
	}
}

// AverageResponseTime is the mean over successful requests, or 0.
func (r *Report) AverageResponseTime() time.Duration {
	if len(r.ResponseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range r.ResponseTimes {
		sum += d
	}
	return sum / time.Duration(len(r.ResponseTimes))
}

// Percentile returns the nearest-rank p-th percentile (0 < p <= 100) of
// successful response times, or 0 when there are none.
func (r *Report) Percentile(p float64) time.Duration {
	n := len(r.ResponseTimes)
	if n == 0 || p <= 0 {
		return 0
	}
	sorted := slices.Clone(r.ResponseTimes)
	slices.Sort(sorted)
	if p >= 100 {
		return sorted[n-1]
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Summary is the printable form of a Report.
type Summary struct {
	URL            string `json:"url" yaml:"url"`
	FailMode       string `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty"`
	ToggleResponse string `json:"toggle_response,omitempty" yaml:"toggle_response,omitempty"`
	Total          int    `json:"total" yaml:"total"`
	Success        int    `json:"success" yaml:"success"`
	Failed         int    `json:"failed" yaml:"failed"`
	Rejected       int    `json:"rejected" yaml:"rejected"`
	Retried        int    `json:"retried" yaml:"retried"`
	Average        string `json:"average_response_time" yaml:"average_response_time"`
	P50            string `json:"p50" yaml:"p50"`
	P95            string `json:"p95" yaml:"p95"`
	P99            string `json:"p99" yaml:"p99"`
	Elapsed        string `json:"elapsed" yaml:"elapsed"`
}

// Summary computes the derived timings.
func (r *Report) Summary() Summary {
	return Summary{
		URL:            r.URL,
		FailMode:       r.FailMode,
		ToggleResponse: r.ToggleResponse,
		Total:          r.Total,
		Success:        r.Success,
		Failed:         r.Failed,
		Rejected:       r.Rejected,
		Retried:        r.Retried,
		Average:        formatDuration(r.AverageResponseTime()),
		P50:            formatDuration(r.Percentile(50)),
		P95:            formatDuration(r.Percentile(95)),
		P99:            formatDuration(r.Percentile(99)),
		Elapsed:        formatDuration(r.Elapsed),
	}
}

// Headers implements the CLI table renderer.
func (s Summary) Headers() []string {
	return []string{"Metric", "Value"}
}

// Rows implements the CLI table renderer.
func (s Summary) Rows() [][]string {
	rows := [][]string{
		{"Total Requests", strconv.Itoa(s.Total)},
		{"Success", strconv.Itoa(s.Success)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Rejected", strconv.Itoa(s.Rejected)},
	}
	if s.Retried > 0 {
		rows = append(rows, []string{"Retried", strconv.Itoa(s.Retried)})
	}
	if s.Success > 0 {
		rows = append(rows,
			[]string{"Average Response Time", s.Average},
			[]string{"p50", s.P50},
			[]string{"p95", s.P95},
			[]string{"p99", s.P99},
		)
	}
	return append(rows, []string{"Elapsed", s.Elapsed})
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.Round(10 * time.Microsecond).String()
	}
}
