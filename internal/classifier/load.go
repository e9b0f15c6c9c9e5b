// SPDX-License-Identifier: MIT
package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model artifact formats accepted by LoadModel.
const (
	FormatAuto    = "auto"
	FormatXGBoost = "xgboost"
	FormatForest  = "forest"
)

// LoadModel reads a model artifact. An empty or auto format is detected from
// the JSON shape.
func LoadModel(path, format string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := ParseModel(data, format)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	logger.Infof("Loaded %T model from %s (%d classes)", m, path, m.NumClasses())
	return m, nil
}

// ParseModel decodes an in-memory artifact.
func ParseModel(data []byte, format string) (Model, error) {
	if format == "" || format == FormatAuto {
		detected, err := DetectModelFormat(data)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	switch format {
	case FormatXGBoost:
		return ParseXGBoost(data)
	case FormatForest:
		return ParseForest(data)
	default:
		return nil, fmt.Errorf("unknown model format %q", format)
	}
}

// DetectModelFormat inspects the top-level keys of a JSON artifact.
func DetectModelFormat(data []byte) (string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("model is not a JSON object: %w", err)
	}
	if _, ok := top["learner"]; ok {
		return FormatXGBoost, nil
	}
	if _, ok := top["estimators"]; ok {
		return FormatForest, nil
	}
	return "", fmt.Errorf("unrecognised model layout")
}
