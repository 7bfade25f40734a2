package ledger

import "fmt"

// Class is the resource classification controlling what compression and
// checkpointing may discard. Classes form a total order and an item's class
// only ever increases over its lifetime; there is no demotion API.
type Class int

const (
	// ClassDroppable content can be removed entirely under pressure.
	ClassDroppable Class = 1
	// ClassRequired content can be summarized but never silently dropped.
	ClassRequired Class = 2
	// ClassPreserved content must survive byte-identical through compression.
	ClassPreserved Class = 3
)

var classNames = map[Class]string{
	ClassDroppable: "droppable",
	ClassRequired:  "required",
	ClassPreserved: "preserved",
}

// String returns the serialization name of the class.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Valid returns true for the three known classes.
func (c Class) Valid() bool {
	_, ok := classNames[c]
	return ok
}

// ClassFromName resolves a serialized class name back to its Class.
// Classes are persisted by name rather than ordinal so the on-disk format
// survives reordering of the enum.
func ClassFromName(name string) (Class, error) {
	for c, n := range classNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("ledger: unknown resource class %q", name)
}
