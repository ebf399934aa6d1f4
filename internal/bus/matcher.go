package bus

import "strings"

type matchKind uint8

const (
	matchExact matchKind = iota
	matchPrefix
	matchAll
)

// Matcher selects the topics a subscription receives.
// Matchers are comparable values, so two matchers built the same way are equal
// and can be used to remove every handler registered under them.
type Matcher struct {
	kind  matchKind
	value string
}

// Exact matches a single topic.
func Exact(t Topic) Matcher {
	return Matcher{kind: matchExact, value: string(t)}
}

// Prefix matches every topic starting with p.
func Prefix(p string) Matcher {
	return Matcher{kind: matchPrefix, value: p}
}

// Namespace matches every topic in a namespace, e.g. Namespace("basket")
// matches "basket:changed" and "basket:toggle".
func Namespace(ns string) Matcher {
	return Prefix(ns + ":")
}

// All matches every topic.
func All() Matcher {
	return Matcher{kind: matchAll}
}

// Match reports whether the topic is accepted.
func (m Matcher) Match(t Topic) bool {
	switch m.kind {
	case matchExact:
		return string(t) == m.value
	case matchPrefix:
		return strings.HasPrefix(string(t), m.value)
	case matchAll:
		return true
	}
	return false
}

func (m Matcher) String() string {
	switch m.kind {
	case matchPrefix:
		return m.value + "*"
	case matchAll:
		return "*"
	default:
		return m.value
	}
}
