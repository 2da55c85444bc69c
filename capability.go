package fork

import "strings"

// Capability is a set of facilities negotiated at handle construction.
// The set is fixed once the handle is created.
type Capability uint8

const (
	// ToFork grants the parent-to-child data channel.
	ToFork Capability = 1 << iota
	// FromFork grants the child-to-parent data channel.
	FromFork
	// Ctrl grants the control channel carrying outcome frames.
	Ctrl
	// Return delivers the work's return value to the parent.
	// Implies Exceptions.
	Return
	// Exceptions delivers the work's failure to the parent. Implies Ctrl.
	Exceptions
	// DeathNotice delivers the child's final cleanup notice to the parent.
	// Implies Ctrl.
	DeathNotice
)

var capNames = []struct {
	cap  Capability
	name string
}{
	{ToFork, "to_fork"},
	{FromFork, "from_fork"},
	{Ctrl, "ctrl"},
	{Return, "return"},
	{Exceptions, "exceptions"},
	{DeathNotice, "death_notice"},
}

// ParseCapabilities resolves an ordered list of facility names into a
// normalized capability set. An unrecognized name fails with
// *UnknownCapabilityError.
func ParseCapabilities(names ...string) (Capability, error) {
	var c Capability
next:
	for _, n := range names {
		for _, e := range capNames {
			if e.name == n {
				c |= e.cap
				continue next
			}
		}
		return 0, &UnknownCapabilityError{Name: n}
	}
	return c.normalize(), nil
}

// normalize expands implied capabilities. Applied once at construction.
func (c Capability) normalize() Capability {
	if c&Return != 0 {
		c |= Exceptions
	}
	if c&(Return|Exceptions|DeathNotice) != 0 {
		c |= Ctrl
	}
	return c
}

// Has reports whether every flag in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	parts := make([]string, 0, len(capNames))
	for _, e := range capNames {
		if c&e.cap != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, ",")
}
