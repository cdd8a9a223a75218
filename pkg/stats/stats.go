// Package stats aggregates per-order latency samples.
package stats

import (
	"fmt"
	"time"
)

// Sample is the timing of one order, split by stage.
type Sample struct {
	Build time.Duration
	Sign  time.Duration
	Post  time.Duration
	Total time.Duration
}

// Bottleneck names the dominant stage.
type Bottleneck string

const (
	NetworkBound Bottleneck = "network-bound"
	CryptoBound  Bottleneck = "crypto-bound"
	Balanced     Bottleneck = "balanced"
	NoData       Bottleneck = "no-data"
)

// Summary is computed over the samples left after warm-up exclusion.
type Summary struct {
	Count    int
	Excluded int

	AvgTotal time.Duration
	MinTotal time.Duration
	MaxTotal time.Duration

	AvgBuild time.Duration
	AvgSign  time.Duration
	AvgPost  time.Duration

	Bottleneck Bottleneck
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "no samples"
	}
	return fmt.Sprintf("n=%d (excluded %d) total avg=%s min=%s max=%s | build=%s sign=%s post=%s | %s",
		s.Count, s.Excluded, s.AvgTotal, s.MinTotal, s.MaxTotal, s.AvgBuild, s.AvgSign, s.AvgPost, s.Bottleneck)
}

// Collector accumulates samples from the sequential submit loop. It is not
// safe for concurrent use.
type Collector struct {
	warmup  int
	samples []Sample
}

// NewCollector drops the first warmup samples from summaries, the ones that
// pay for connection setup.
func NewCollector(warmup int) *Collector {
	if warmup < 0 {
		warmup = 0
	}
	return &Collector{warmup: warmup}
}

func (c *Collector) Record(s Sample) {
	c.samples = append(c.samples, s)
}

// Len returns the number of recorded samples.
func (c *Collector) Len() int { return len(c.samples) }

// Summary excludes at most len-1 warm-up samples, so a non-empty collector
// always summarizes at least one.
func (c *Collector) Summary() Summary {
	n := len(c.samples)
	if n == 0 {
		return Summary{Bottleneck: NoData}
	}
	skip := min(c.warmup, n-1)
	kept := c.samples[skip:]

	sum := Summary{
		Count:    len(kept),
		Excluded: skip,
		MinTotal: kept[0].Total,
		MaxTotal: kept[0].Total,
	}
	var total, build, sign, post time.Duration
	for _, s := range kept {
		total += s.Total
		build += s.Build
		sign += s.Sign
		post += s.Post
		sum.MinTotal = min(sum.MinTotal, s.Total)
		sum.MaxTotal = max(sum.MaxTotal, s.Total)
	}
	k := time.Duration(len(kept))
	sum.AvgTotal = total / k
	sum.AvgBuild = build / k
	sum.AvgSign = sign / k
	sum.AvgPost = post / k
	sum.Bottleneck = classify(sum.AvgSign, sum.AvgPost)
	return sum
}

func classify(sign, post time.Duration) Bottleneck {
	switch {
	case post > 2*sign:
		return NetworkBound
	case sign > 2*post:
		return CryptoBound
	default:
		return Balanced
	}
}
