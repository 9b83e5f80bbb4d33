// internal/model/target_spec.go
package model

import (
	"encoding/json"
	"fmt"
)

// Target spec kinds. The spec is stored on the campaign as a JSON blob and
// validated when it crosses the boundary, not at every read site.
const (
	TargetAll    = "all"
	TargetIDs    = "ids"
	TargetFilter = "filter"
)

// TargetSpec describes which recipients a campaign addresses: everyone, an
// explicit recipient-ID set, or a field filter.
type TargetSpec struct {
	Kind             string `json:"kind"`
	RecipientIDs     []int  `json:"recipient_ids,omitempty"`
	Location         string `json:"location,omitempty"`
	PreferredProduct string `json:"preferred_product,omitempty"`
}

// Validate checks the spec's shape for its declared kind.
func (t TargetSpec) Validate() error {
	switch t.Kind {
	case TargetAll:
		return nil
	case TargetIDs:
		if len(t.RecipientIDs) == 0 {
			return fmt.Errorf("target spec kind %q requires recipient_ids", t.Kind)
		}
		return nil
	case TargetFilter:
		if t.Location == "" && t.PreferredProduct == "" {
			return fmt.Errorf("target spec kind %q requires at least one filter field", t.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown target spec kind %q", t.Kind)
	}
}

// ParseTargetSpec decodes and validates a stored target spec blob.
func ParseTargetSpec(raw []byte) (TargetSpec, error) {
	var t TargetSpec
	if len(raw) == 0 {
		t.Kind = TargetAll
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("decode target spec: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Encode serializes the spec for storage.
func (t TargetSpec) Encode() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}
