package evaluator

import (
	"fmt"
	"strings"
)

// ClassStats accumulates per-class evaluation counters. NoSamples marks
// a class absent from the held-out set, which is distinct from a class
// evaluated at 0% accuracy.
type ClassStats struct {
	Samples   int     `json:"samples"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
	NoSamples bool    `json:"no_samples"`
}

// Report is the outcome of one evaluation pass. It is derived data,
// persisted only inside its owning checkpoint's metrics.
type Report struct {
	OverallAccuracy float64            `json:"overall_accuracy"`
	AverageLoss     float64            `json:"average_loss"`
	PerClass        map[int]ClassStats `json:"per_class"`
	Predictions     map[int]int        `json:"prediction_distribution"`

	totalSamples int
	totalCorrect int
}

func newReport(numClasses int) Report {
	r := Report{
		PerClass:    make(map[int]ClassStats, numClasses),
		Predictions: make(map[int]int, numClasses),
	}
	for c := range numClasses {
		r.PerClass[c] = ClassStats{}
		r.Predictions[c] = 0
	}

	return r
}

func (r *Report) observe(label, predicted int) {
	stats := r.PerClass[label]
	stats.Samples++
	if label == predicted {
		stats.Correct++
		r.totalCorrect++
	}
	r.PerClass[label] = stats
	r.Predictions[predicted]++
	r.totalSamples++
}

func (r *Report) finalize(lossSum float64, batches int) {
	if r.totalSamples > 0 {
		r.OverallAccuracy = float64(r.totalCorrect) / float64(r.totalSamples)
	}
	if batches > 0 {
		r.AverageLoss = lossSum / float64(batches)
	}

	for c, stats := range r.PerClass {
		if stats.Samples == 0 {
			stats.NoSamples = true
			stats.Accuracy = 0
		} else {
			stats.Accuracy = float64(stats.Correct) / float64(stats.Samples)
		}
		r.PerClass[c] = stats
	}
}

// TotalSamples returns the number of examples seen during the pass.
func (r Report) TotalSamples() int {
	return r.totalSamples
}

// Fields flattens the report into named scalars suitable for checkpoint
// metrics.
func (r Report) Fields() map[string]float64 {
	fields := map[string]float64{
		"accuracy": r.OverallAccuracy,
		"loss":     r.AverageLoss,
	}
	for c, stats := range r.PerClass {
		if stats.NoSamples {
			continue
		}
		fields[fmt.Sprintf("class_%d_accuracy", c)] = stats.Accuracy
	}
	for c, count := range r.Predictions {
		fields[fmt.Sprintf("class_%d_predictions", c)] = float64(count)
	}

	return fields
}

// Render formats the per-class breakdown and prediction distribution as
// a table, using the label map when a class name is known.
func (r Report) Render(labels map[int]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "overall accuracy: %.2f%%, average loss: %.4f\n", r.OverallAccuracy*100, r.AverageLoss)
	fmt.Fprintf(&b, "%-20s | %8s | %8s | %10s\n", "class", "samples", "correct", "accuracy")

	for c := 0; c < len(r.PerClass); c++ {
		stats := r.PerClass[c]
		name := labels[c]
		if name == "" {
			name = fmt.Sprintf("class %d", c)
		}
		if stats.NoSamples {
			fmt.Fprintf(&b, "%-20s | %8d | %8d | %10s\n", name, 0, 0, "no samples")

			continue
		}
		fmt.Fprintf(&b, "%-20s | %8d | %8d | %9.2f%%\n", name, stats.Samples, stats.Correct, stats.Accuracy*100)
	}

	var totalPredictions int
	for _, count := range r.Predictions {
		totalPredictions += count
	}
	if totalPredictions > 0 {
		fmt.Fprintf(&b, "%-20s | %12s | %10s\n", "class", "predictions", "share")
		for c := 0; c < len(r.Predictions); c++ {
			name := labels[c]
			if name == "" {
				name = fmt.Sprintf("class %d", c)
			}
			share := float64(r.Predictions[c]) / float64(totalPredictions) * 100
			fmt.Fprintf(&b, "%-20s | %12d | %9.2f%%\n", name, r.Predictions[c], share)
		}
	}

	return b.String()
}
