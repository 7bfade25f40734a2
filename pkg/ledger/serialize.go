package ledger

import (
	"fmt"
	"time"
)

// ToDict returns the JSON-compatible map form of the ledger. Classes are
// serialized by name so the format is stable across enum changes.
func (l *Ledger) ToDict() map[string]interface{} {
	resources := make(map[string]interface{}, len(l.resources))
	for id, e := range l.resources {
		rec := map[string]interface{}{
			"value": e.value,
			"tag": map[string]interface{}{
				"resource_id": e.tag.ResourceID,
				"class_name":  e.tag.Class.String(),
				"created_at":  e.tag.CreatedAt.Format(time.RFC3339Nano),
				"provenance":  e.tag.Provenance,
				"rationale":   e.tag.Rationale,
			},
			"accessed_count": e.accessCount,
		}
		if e.lastAccessed != nil {
			rec["last_accessed"] = e.lastAccessed.Format(time.RFC3339Nano)
		}
		resources[id] = rec
	}
	return map[string]interface{}{
		"resources": resources,
		"stats": map[string]interface{}{
			"promotions": l.promotions,
			"drops":      l.drops,
		},
	}
}

// FromDict reconstructs a ledger from its map form.
func FromDict(d map[string]interface{}) (*Ledger, error) {
	l := New()
	resources, _ := d["resources"].(map[string]interface{})
	for id, raw := range resources {
		rec, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("ledger: resource %s is not a map", id)
		}
		tagRaw, ok := rec["tag"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("ledger: resource %s missing tag", id)
		}
		className, _ := tagRaw["class_name"].(string)
		class, err := ClassFromName(className)
		if err != nil {
			return nil, fmt.Errorf("ledger: resource %s: %w", id, err)
		}
		createdAt, err := parseTime(tagRaw["created_at"])
		if err != nil {
			return nil, fmt.Errorf("ledger: resource %s created_at: %w", id, err)
		}
		provenance, _ := tagRaw["provenance"].(string)
		rationale, _ := tagRaw["rationale"].(string)

		e := &entry{
			value: rec["value"],
			tag: &Tag{
				ResourceID: id,
				Class:      class,
				CreatedAt:  createdAt,
				Provenance: provenance,
				Rationale:  rationale,
			},
			accessCount: asInt(rec["accessed_count"]),
		}
		if raw, ok := rec["last_accessed"]; ok && raw != nil {
			t, err := parseTime(raw)
			if err != nil {
				return nil, fmt.Errorf("ledger: resource %s last_accessed: %w", id, err)
			}
			e.lastAccessed = &t
		}
		l.resources[id] = e
		l.byClass[class][id] = struct{}{}
	}
	if stats, ok := d["stats"].(map[string]interface{}); ok {
		l.promotions = asInt(stats["promotions"])
		l.drops = asInt(stats["drops"])
	}
	return l, nil
}

// parseTime accepts either a time.Time (in-process round trips) or an
// RFC3339 string (JSON round trips).
func parseTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", raw)
	}
}

// asInt coerces JSON numeric forms to int. encoding/json decodes numbers as
// float64, while in-process dicts hold native ints.
func asInt(raw interface{}) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
