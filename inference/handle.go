package inference

import (
	"time"

	"github.com/rodneyosodo/fedstream/pkg/model"
)

// ModelHandle is an immutable snapshot of a loaded model together with
// the checkpoint round it was materialized from. The loop swaps whole
// handles on reload, so in-flight predictions always see a consistent
// model.
type ModelHandle struct {
	Classifier    model.Classifier
	SourceVersion uint64
	LoadedAt      time.Time
}
