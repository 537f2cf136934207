package inference

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// DefaultLabels is the CIFAR-10 class-label table used when no labels
// file is configured.
var DefaultLabels = []string{
	"airplane",
	"automobile",
	"bird",
	"cat",
	"deer",
	"dog",
	"frog",
	"horse",
	"ship",
	"truck",
}

type labelsFile struct {
	Labels []string `toml:"labels"`
}

// LoadLabels reads a class-label table from a TOML file. The file holds
// a single `labels` array ordered by class index.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file %s: %w", path, err)
	}

	var lf labelsFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}
	if len(lf.Labels) == 0 {
		return nil, fmt.Errorf("labels file %s has no labels", path)
	}

	return lf.Labels, nil
}
