// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histMinUs   = 1
	histMaxUs   = 3600000000 // 1 hour
	histSigFigs = 3
)

// HistogramBin is one bar of a latency distribution. FromMs and ToMs are
// inclusive bounds.
type HistogramBin struct {
	FromMs float64
	ToMs   float64
	Count  int64
}

// LatencyDistribution collapses sample into at most numBins equal width
// bins spanning its min to max.
func LatencyDistribution(sample []time.Duration, numBins int) []HistogramBin {
	if len(sample) == 0 || numBins <= 0 {
		return nil
	}

	h := hdrhistogram.New(histMinUs, histMaxUs, histSigFigs)
	for _, d := range sample {
		us := d.Microseconds()
		if us < histMinUs {
			us = histMinUs
		}
		if us > histMaxUs {
			us = histMaxUs
		}
		_ = h.RecordValue(us)
	}

	min, max := h.Min(), h.Max()
	width := (max-min)/int64(numBins) + 1
	bins := make([]HistogramBin, numBins)
	for i := range bins {
		from := min + int64(i)*width
		bins[i].FromMs = float64(from) / 1000
		bins[i].ToMs = float64(from+width-1) / 1000
	}

	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		idx := int((bar.From - min) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= numBins {
			idx = numBins - 1
		}
		bins[idx].Count += bar.Count
	}

	// Trim empty bins off the tail
	last := len(bins) - 1
	for last > 0 && bins[last].Count == 0 {
		last--
	}
	return bins[:last+1]
}
