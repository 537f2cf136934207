package inference

import (
	"fmt"
	"image"
	"math"
)

// Normalization constants applied per RGB channel after scaling pixel
// values to [0, 1].
var (
	normMean = [3]float64{0.485, 0.456, 0.406}
	normStd  = [3]float64{0.229, 0.224, 0.225}
)

const unknownLabel = "Unknown"

// LowConfidenceLabel is reported when the top prediction falls below the
// configured confidence threshold.
const LowConfidenceLabel = "Low confidence"

// Processor turns raw frames into model input vectors and model outputs
// into labeled predictions.
type Processor struct {
	labels    []string
	threshold float64
}

func NewProcessor(labels []string, threshold float64) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be in [0, 1], got %f", threshold)
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	return &Processor{labels: labels, threshold: threshold}, nil
}

// Preprocess resizes the frame to the square input size implied by
// inputDim (3 channels), scales pixels to [0, 1] and applies per-channel
// mean/std normalization. The result is laid out channel-major to match
// the training pipeline.
func (p *Processor) Preprocess(frame image.Image, inputDim int) ([]float64, error) {
	side := int(math.Sqrt(float64(inputDim) / 3))
	if side <= 0 || 3*side*side != inputDim {
		return nil, fmt.Errorf("input dimension %d is not a square RGB shape", inputDim)
	}

	bounds := frame.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	out := make([]float64, inputDim)
	plane := side * side
	for y := 0; y < side; y++ {
		srcY := bounds.Min.Y + y*bounds.Dy()/side
		for x := 0; x < side; x++ {
			srcX := bounds.Min.X + x*bounds.Dx()/side
			r, g, b, _ := frame.At(srcX, srcY).RGBA()
			idx := y*side + x
			out[idx] = (float64(r)/65535.0 - normMean[0]) / normStd[0]
			out[plane+idx] = (float64(g)/65535.0 - normMean[1]) / normStd[1]
			out[2*plane+idx] = (float64(b)/65535.0 - normMean[2]) / normStd[2]
		}
	}

	return out, nil
}

// Prediction is a single labeled classification result.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
}

// GetPrediction picks the top class from a probability vector and gates
// it on the confidence threshold. Below-threshold predictions are
// reported as low confidence with a zero score.
func (p *Processor) GetPrediction(probs []float64) Prediction {
	best, conf := 0, math.Inf(-1)
	for i, v := range probs {
		if v > conf {
			best, conf = i, v
		}
	}

	if len(probs) == 0 || conf < p.threshold {
		return Prediction{Label: LowConfidenceLabel, Confidence: 0.0, Class: -1}
	}

	label := unknownLabel
	if best < len(p.labels) {
		label = p.labels[best]
	}

	return Prediction{Label: label, Confidence: conf, Class: best}
}
