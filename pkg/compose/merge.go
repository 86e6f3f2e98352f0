package compose

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ShallowMerge returns a new mapping holding every key of base and override. Keys present
// in both take the override value. Nested mappings are not merged.
func ShallowMerge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// MergeTopLevel combines two values of the same top-level key. existing is the value
// accumulated so far and wins conflicts. The version key instead keeps the higher version.
func MergeTopLevel(key string, existing, incoming any) any {
	if key == versionKey {
		return higherVersion(existing, incoming)
	}

	existingMap, ok1 := existing.(map[string]any)
	incomingMap, ok2 := incoming.(map[string]any)
	if ok1 && ok2 {
		return ShallowMerge(incomingMap, existingMap)
	}
	return existing
}

// higherVersion compares both values as semantic versions. A value that cannot be parsed
// loses against one that can; when neither parses the existing value is kept. Parsed
// documents carry the version as its source text, see decodeDocument.
func higherVersion(existing, incoming any) any {
	a, errA := version.NewVersion(fmt.Sprint(existing))
	b, errB := version.NewVersion(fmt.Sprint(incoming))

	switch {
	case errA != nil && errB == nil:
		return incoming
	case errA != nil || errB != nil:
		return existing
	case b.GreaterThan(a):
		return incoming
	default:
		return existing
	}
}
