package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDPrefix is the prefix used for all ledger resource IDs.
const IDPrefix = "res_"

// NewResourceID generates a fresh unique resource identifier.
func NewResourceID() string {
	return IDPrefix + uuid.NewString()
}

// Tag records the classification of a single resource. Tags are immutable;
// promotion replaces a resource's tag with a new one that preserves the
// original CreatedAt and appends to the rationale trail.
type Tag struct {
	ResourceID string
	Class      Class
	CreatedAt  time.Time
	Provenance string
	Rationale  string
}

// entry is the ledger's per-resource record.
type entry struct {
	value        interface{}
	tag          *Tag
	accessCount  int
	lastAccessed *time.Time
}

// Ledger tracks a resource class per tagged item and enforces one-way
// promotion. It maintains a class index alongside the primary map; the two
// are kept consistent on every Tag, Promote, and Drop.
//
// Ledger is not safe for concurrent use. Each context log exclusively owns
// its ledger, and branching deep-copies it, so no locking is needed.
type Ledger struct {
	resources map[string]*entry
	byClass   map[Class]map[string]struct{}

	promotions int
	drops      int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		resources: make(map[string]*entry),
		byClass: map[Class]map[string]struct{}{
			ClassDroppable: {},
			ClassRequired:  {},
			ClassPreserved: {},
		},
	}
}

// Tag registers a value under a fresh resource id with the given class.
// It always succeeds and returns the generated id.
func (l *Ledger) Tag(value interface{}, class Class, provenance, rationale string) string {
	id := NewResourceID()
	l.resources[id] = &entry{
		value: value,
		tag: &Tag{
			ResourceID: id,
			Class:      class,
			CreatedAt:  time.Now(),
			Provenance: provenance,
			Rationale:  rationale,
		},
	}
	l.byClass[class][id] = struct{}{}
	return id
}

// Promote raises a resource to a strictly higher class. It returns false
// without mutating anything if the id is unknown or the new class is not an
// increase. On success the resource moves between class buckets and receives
// a fresh tag that keeps the original CreatedAt and appends the new rationale.
func (l *Ledger) Promote(id string, newClass Class, rationale string) bool {
	e, ok := l.resources[id]
	if !ok {
		return false
	}
	old := e.tag
	if newClass <= old.Class {
		return false
	}
	delete(l.byClass[old.Class], id)
	l.byClass[newClass][id] = struct{}{}
	combined := old.Rationale
	if combined != "" && rationale != "" {
		combined += "; " + rationale
	} else if rationale != "" {
		combined = rationale
	}
	e.tag = &Tag{
		ResourceID: id,
		Class:      newClass,
		CreatedAt:  old.CreatedAt,
		Provenance: old.Provenance,
		Rationale:  combined,
	}
	l.promotions++
	return true
}

// Drop removes a droppable resource entirely. Resources at Required or
// Preserved can never be dropped; promotion is a one-way commitment.
func (l *Ledger) Drop(id string) bool {
	e, ok := l.resources[id]
	if !ok {
		return false
	}
	if e.tag.Class != ClassDroppable {
		return false
	}
	delete(l.byClass[ClassDroppable], id)
	delete(l.resources, id)
	l.drops++
	return true
}

// Get returns the value for a resource id and records the access.
func (l *Ledger) Get(id string) (interface{}, bool) {
	e, ok := l.resources[id]
	if !ok {
		return nil, false
	}
	now := time.Now()
	e.accessCount++
	e.lastAccessed = &now
	return e.value, true
}

// TagFor returns the current tag for a resource id without recording an
// access. It is a pure read.
func (l *Ledger) TagFor(id string) (*Tag, bool) {
	e, ok := l.resources[id]
	if !ok {
		return nil, false
	}
	return e.tag, true
}

// ClassOf returns the current class for a resource id.
func (l *Ledger) ClassOf(id string) (Class, bool) {
	e, ok := l.resources[id]
	if !ok {
		return 0, false
	}
	return e.tag.Class, true
}

// ByClass returns the ids currently tagged with the given class.
func (l *Ledger) ByClass(class Class) []string {
	bucket := l.byClass[class]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	return ids
}

// Counts holds per-class totals alongside the overall count.
type Counts struct {
	Droppable int
	Required  int
	Preserved int
	Total     int
}

// Count returns per-class and total resource counts.
func (l *Ledger) Count() Counts {
	return Counts{
		Droppable: len(l.byClass[ClassDroppable]),
		Required:  len(l.byClass[ClassRequired]),
		Preserved: len(l.byClass[ClassPreserved]),
		Total:     len(l.resources),
	}
}

// Partition returns the tracked values grouped by their current class.
func (l *Ledger) Partition() map[Class][]interface{} {
	out := map[Class][]interface{}{
		ClassDroppable: {},
		ClassRequired:  {},
		ClassPreserved: {},
	}
	for class, bucket := range l.byClass {
		for id := range bucket {
			out[class] = append(out[class], l.resources[id].value)
		}
	}
	return out
}

// Len returns the number of tracked resources.
func (l *Ledger) Len() int {
	return len(l.resources)
}

// Clone returns a deep structural copy of the ledger. Tags are immutable and
// may be shared; entries and index buckets are copied so the clone never
// aliases the original's mutable state. Values are copied by reference: the
// ledger stores descriptive values (turn previews), not owned structures.
func (l *Ledger) Clone() *Ledger {
	clone := New()
	clone.promotions = l.promotions
	clone.drops = l.drops
	for id, e := range l.resources {
		copied := &entry{
			value:       e.value,
			tag:         e.tag,
			accessCount: e.accessCount,
		}
		if e.lastAccessed != nil {
			t := *e.lastAccessed
			copied.lastAccessed = &t
		}
		clone.resources[id] = copied
		clone.byClass[e.tag.Class][id] = struct{}{}
	}
	return clone
}

// validateIndex checks the class-index invariant: every id in a bucket has a
// tag whose class equals that bucket. Used by tests.
func (l *Ledger) validateIndex() error {
	for class, bucket := range l.byClass {
		for id := range bucket {
			e, ok := l.resources[id]
			if !ok {
				return fmt.Errorf("ledger: index id %s missing from primary map", id)
			}
			if e.tag.Class != class {
				return fmt.Errorf("ledger: index id %s in bucket %s but tagged %s", id, class, e.tag.Class)
			}
		}
	}
	for id, e := range l.resources {
		if _, ok := l.byClass[e.tag.Class][id]; !ok {
			return fmt.Errorf("ledger: id %s tagged %s but absent from its bucket", id, e.tag.Class)
		}
	}
	return nil
}
