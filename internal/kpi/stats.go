package kpi

import (
	"math"
	"sort"
)

// Bucket upper bounds in seconds. Each bucket starts just above the previous
// bound.
const (
	bucket5Min  = 300
	bucket15Min = 900
	bucket1Hour = 3600
)

// ComputeProfile builds the latency profile for latencies given in seconds.
// An empty input yields the zero profile.
func ComputeProfile(latencies []int) ResponseTimeProfile {
	n := len(latencies)
	if n == 0 {
		return ResponseTimeProfile{}
	}

	sorted := make([]int, n)
	copy(sorted, latencies)
	sort.Ints(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}

	p := ResponseTimeProfile{
		AvgSeconds:     sum / n,
		MinSeconds:     sorted[0],
		MaxSeconds:     sorted[n-1],
		MedianSeconds:  Median(sorted),
		P75Seconds:     Percentile(sorted, 0.75),
		P90Seconds:     Percentile(sorted, 0.90),
		P95Seconds:     Percentile(sorted, 0.95),
		TotalResponses: n,
	}

	p.AvgMinutes = toMinutes(p.AvgSeconds)
	p.MinMinutes = toMinutes(p.MinSeconds)
	p.MaxMinutes = toMinutes(p.MaxSeconds)
	p.MedianMinutes = toMinutes(p.MedianSeconds)
	p.P75Minutes = toMinutes(p.P75Seconds)
	p.P90Minutes = toMinutes(p.P90Seconds)
	p.P95Minutes = toMinutes(p.P95Seconds)

	// Buckets are disjoint ranges, so their counts sum to TotalResponses.
	for _, v := range sorted {
		switch {
		case v <= bucket5Min:
			p.Under5Min++
		case v <= bucket15Min:
			p.Under15Min++
		case v <= bucket1Hour:
			p.Under1Hour++
		default:
			p.Over1Hour++
		}
	}

	p.PctUnder5Min = percentOf(p.Under5Min, n)
	p.PctUnder15Min = percentOf(p.Under15Min, n)
	p.PctUnder1Hour = percentOf(p.Under1Hour, n)
	p.PctOver1Hour = percentOf(p.Over1Hour, n)

	return p
}

// Median returns the middle value of an ascending slice. For an even count it
// is the floor of the mean of the two middle values. Returns 0 for an empty
// slice.
func Median(sorted []int) int {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

// Percentile returns the nearest-rank value at floor(p*(n-1)) of an ascending
// slice, clamped to the slice bounds. Returns 0 for an empty slice.
func Percentile(sorted []int, p float64) int {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func toMinutes(seconds int) float64 {
	return Round1(float64(seconds) / 60)
}

func percentOf(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return Round1(float64(count) / float64(total) * 100)
}
