package util

import (
	"math"
)

// This file implements the statistics reported by class info: a summary of
// a set of values and a size histogram of live objects. The histogram uses
// exponential buckets from a few bytes up to the largest block size, so its
// memory use is constant no matter how many objects a class holds.

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, maximum and mean of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	minMaxRatio := 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

// DistributionStats rates how evenly values are spread, e.g. the fill level
// of the blocks of a class
type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats combines the coefficient of variation and the
// min/max ratio into a quality between 0 (uneven) and 1 (even)
func NewDistributionStats(values []float64) DistributionStats {
	stats := NewStats(values)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

var sizeBoundaries = []int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768}

// SizeHistogram tracks the payload sizes of live objects. Samples are added
// on insert and removed on delete.
//
// Thread-safety: not safe for concurrent use, the owning class serializes access.
type SizeHistogram struct {
	buckets []int64
	count   int64
	sum     int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

func bucketOf(size int) int {
	for i, boundary := range sizeBoundaries {
		if size <= boundary {
			return i
		}
	}
	return len(sizeBoundaries)
}

// AddSample records one object of size bytes
func (h *SizeHistogram) AddSample(size int) {
	h.buckets[bucketOf(size)]++
	h.count++
	h.sum += int64(size)
}

// RemoveSample forgets one object of size bytes
func (h *SizeHistogram) RemoveSample(size int) {
	b := bucketOf(size)
	if h.buckets[b] == 0 {
		return
	}
	h.buckets[b]--
	h.count--
	h.sum -= int64(size)
}

// GetCount returns the number of samples
func (h *SizeHistogram) GetCount() int64 {
	return h.count
}

// AverageSize returns the average sample size
func (h *SizeHistogram) AverageSize() int {
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median sample size
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100)
// as the midpoint of the bucket holding it
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if target == 0 {
		target = 1
	}
	var cumulative int64
	for i, count := range h.buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			return sizeBoundaries[len(sizeBoundaries)-1] * 2
		}
	}
	return int(h.sum / h.count)
}

// Reset clears all samples
func (h *SizeHistogram) Reset() {
	h.count = 0
	h.sum = 0
	clear(h.buckets)
}

// SizeDistribution returns the bucket boundaries and the percentage of
// samples in each bucket
func (h *SizeHistogram) SizeDistribution() ([]int, []float64) {
	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return sizeBoundaries, percentages
	}
	for i, count := range h.buckets {
		percentages[i] = float64(count) * 100.0 / float64(h.count)
	}
	return sizeBoundaries, percentages
}
