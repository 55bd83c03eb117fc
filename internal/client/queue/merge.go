package queue

import (
	"encoding/json"
	"fmt"
	"maps"
)

// mergePayload overlays next onto prev. Top-level fields of next win; the
// nested "data" objects are merged key by key and a null in next removes
// the key.
func mergePayload(prev, next json.RawMessage) (json.RawMessage, error) {
	var a, b map[string]any
	if err := json.Unmarshal(prev, &a); err != nil {
		return nil, fmt.Errorf("decode queued payload: %w", err)
	}
	if err := json.Unmarshal(next, &b); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if a == nil {
		a = map[string]any{}
	}

	for k, v := range b {
		if k == "data" {
			old, okOld := a[k].(map[string]any)
			cur, okCur := v.(map[string]any)
			if okOld && okCur {
				merged := maps.Clone(old)
				for dk, dv := range cur {
					if dv == nil {
						delete(merged, dk)
						continue
					}
					merged[dk] = dv
				}
				a[k] = merged
				continue
			}
		}
		a[k] = v
	}

	return json.Marshal(a)
}
