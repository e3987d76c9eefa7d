package model

import (
	"encoding/json"
	"math"
	"time"
)

type Address struct {
	Address string `json:"address"`
	Family  int    `json:"family"`
}

type TrialRecord struct {
	Strategy  string        `json:"strategy"`
	Index     int           `json:"index"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration"`
	Addresses []Address     `json:"addresses,omitempty"`
	Recorded  bool          `json:"recorded"`
	Error     string        `json:"error,omitempty"`
}

// Seconds is a statistic in seconds. NaN means the histogram had no samples
// and is encoded as JSON null.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

func (s Seconds) Defined() bool {
	return !math.IsNaN(float64(s))
}

type Summary struct {
	Count int64   `json:"count"`
	Min   Seconds `json:"min"`
	Max   Seconds `json:"max"`
	P50   Seconds `json:"p50"`
	P90   Seconds `json:"p90"`
	P99   Seconds `json:"p99"`
}

type StrategyReport struct {
	Name     string  `json:"name"`
	Trials   int     `json:"trials"`
	Samples  int64   `json:"samples"`
	Failures int     `json:"failures"`
	Dropped  int     `json:"dropped"`
	Summary  Summary `json:"summary"`
}

type BenchReport struct {
	Host       string           `json:"host"`
	Trials     int              `json:"trials"`
	All        bool             `json:"all"`
	Family     int              `json:"family,omitempty"`
	Strategies []StrategyReport `json:"strategies"`
	Elapsed    string           `json:"elapsed"`
}

// Timings are phase durations in milliseconds. Nil means the phase did not happen.
type Timings struct {
	DNSLookup     *float64 `json:"dnsLookup,omitempty"`
	TCPConnection *float64 `json:"tcpConnection,omitempty"`
	TLSHandshake  *float64 `json:"tlsHandshake,omitempty"`
	Total         *float64 `json:"total,omitempty"`
}

type Failure struct {
	Classification string   `json:"classification"`
	Summary        string   `json:"summary,omitempty"`
	Hints          []string `json:"hints,omitempty"`
}

type PhaseReport struct {
	URL        string    `json:"url"`
	Strategy   string    `json:"strategy"`
	StatusCode int       `json:"status_code,omitempty"`
	Addresses  []Address `json:"addresses,omitempty"`
	Timings    Timings   `json:"timings"`
	Failure    Failure   `json:"failure"`
}
