package contextlog

import (
	"fmt"
	"time"

	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/types"
)

// ToDict returns the JSON-compatible map form of the log. Field names are
// part of the persisted format and must not change.
func (log *ContextLog) ToDict() map[string]interface{} {
	turns := make([]interface{}, len(log.turns))
	for i, turn := range log.turns {
		turns[i] = map[string]interface{}{
			"role":        string(turn.Role),
			"content":     turn.Content,
			"timestamp":   turn.Timestamp.Format(time.RFC3339Nano),
			"resource_id": turn.ResourceID,
			"metadata":    turn.Metadata,
		}
	}
	meta := map[string]interface{}{
		"total_tokens":      log.totalTokens,
		"max_tokens":        log.maxTokens,
		"compression_count": log.compressionCount,
	}
	if log.lastCompression != nil {
		meta["last_compression"] = log.lastCompression.Format(time.RFC3339Nano)
	}
	return map[string]interface{}{
		"max_tokens": log.maxTokens,
		"position":   log.position,
		"turns":      turns,
		"linearity":  log.ledger.ToDict(),
		"meta":       meta,
	}
}

// FromDict reconstructs a log from its map form. Turns are not reclassified;
// their resource ids resolve against the deserialized ledger.
func FromDict(d map[string]interface{}, opts ...Option) (*ContextLog, error) {
	maxTokens := asInt(d["max_tokens"])
	log := New(maxTokens, opts...)

	if raw, ok := d["linearity"].(map[string]interface{}); ok {
		led, err := ledger.FromDict(raw)
		if err != nil {
			return nil, fmt.Errorf("contextlog: linearity: %w", err)
		}
		log.ledger = led
	}

	rawTurns, _ := d["turns"].([]interface{})
	for i, raw := range rawTurns {
		rec, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("contextlog: turn %d is not a map", i)
		}
		role, _ := rec["role"].(string)
		if !types.Role(role).Valid() {
			return nil, fmt.Errorf("contextlog: turn %d has unknown role %q", i, role)
		}
		content, _ := rec["content"].(string)
		timestamp, err := parseTime(rec["timestamp"])
		if err != nil {
			return nil, fmt.Errorf("contextlog: turn %d timestamp: %w", i, err)
		}
		resourceID, _ := rec["resource_id"].(string)
		turn := &types.Turn{
			Role:       types.Role(role),
			Content:    content,
			Timestamp:  timestamp,
			ResourceID: resourceID,
			Metadata:   make(map[string]interface{}),
		}
		if md, ok := rec["metadata"].(map[string]interface{}); ok {
			for k, v := range md {
				turn.Metadata[k] = v
			}
		}
		log.turns = append(log.turns, turn)
	}

	log.Seek(asInt(d["position"]))

	if meta, ok := d["meta"].(map[string]interface{}); ok {
		log.totalTokens = asInt(meta["total_tokens"])
		log.compressionCount = asInt(meta["compression_count"])
		if raw, ok := meta["last_compression"]; ok && raw != nil {
			t, err := parseTime(raw)
			if err != nil {
				return nil, fmt.Errorf("contextlog: last_compression: %w", err)
			}
			log.lastCompression = &t
		}
	} else {
		for _, turn := range log.turns {
			log.totalTokens += log.estimator.Estimate(turn.Content)
		}
	}
	return log, nil
}

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
