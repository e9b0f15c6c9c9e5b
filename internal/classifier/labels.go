// SPDX-License-Identifier: MIT
package classifier

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Labels is a LabelEncoder whose code i is the i-th label, the order a
// fitted scikit-learn LabelEncoder stores in classes_.
type Labels []string

// Decode returns the label for code.
func (l Labels) Decode(code int) (string, error) {
	if code < 0 || code >= len(l) {
		return "", fmt.Errorf("class code %d out of range [0, %d)", code, len(l))
	}
	return l[code], nil
}

// Labels returns a copy of the label list.
func (l Labels) Labels() []string {
	out := make([]string, len(l))
	copy(out, l)
	return out
}

// LoadLabels reads a label file. Plain text files hold one label per line;
// YAML and JSON files hold a list or an object with a classes list.
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	var labels Labels
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		labels = parseTextLabels(data)
	} else if labels, err = ParseLabels(data); err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}
	if err := labels.validate(); err != nil {
		return nil, fmt.Errorf("labels file %s: %w", path, err)
	}
	return labels, nil
}

// ParseLabels decodes a YAML or JSON label document.
func ParseLabels(data []byte) (Labels, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Classes []string `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Classes == nil {
		return nil, fmt.Errorf("expected a list of labels or a classes key")
	}
	return doc.Classes, nil
}

func parseTextLabels(data []byte) Labels {
	var out Labels
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (l Labels) validate() error {
	if len(l) < 2 {
		return fmt.Errorf("need at least two labels, got %d", len(l))
	}
	seen := make(map[string]struct{}, len(l))
	for _, s := range l {
		if s == "" {
			return fmt.Errorf("empty label")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate label %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}
