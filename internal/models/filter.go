package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FilterKind identifies which variant of an ItemFilter is populated.
type FilterKind string

const (
	// FilterAll accepts every item at the source peripheral.
	FilterAll FilterKind = "all"
	// FilterSubstring accepts items whose identifier contains a literal
	// substring. Matching is case-sensitive raw substring search because
	// that is exactly what the remote executor does; fuzzy matching is a
	// suggestion-time aid only and never applies to transfers.
	FilterSubstring FilterKind = "substring"
	// FilterNames accepts items whose identifier is an exact member of a
	// fixed name list.
	FilterNames FilterKind = "names"
)

// ItemFilter is a tagged variant: exactly one of {all, substring, names}.
// The fields are unexported so a "both set" state cannot be constructed;
// the zero value accepts all items.
type ItemFilter struct {
	kind      FilterKind
	substring string
	names     []string
	nameSet   map[string]struct{}
}

// AllItems returns the unrestricted filter.
func AllItems() ItemFilter {
	return ItemFilter{kind: FilterAll}
}

// SubstringFilter returns a filter accepting identifiers containing s.
func SubstringFilter(s string) ItemFilter {
	if s == "" {
		return AllItems()
	}
	return ItemFilter{kind: FilterSubstring, substring: s}
}

// NamesFilter returns a filter accepting exactly the given identifiers.
func NamesFilter(names []string) ItemFilter {
	if len(names) == 0 {
		return AllItems()
	}
	copied := make([]string, len(names))
	copy(copied, names)
	set := make(map[string]struct{}, len(copied))
	for _, name := range copied {
		set[name] = struct{}{}
	}
	return ItemFilter{kind: FilterNames, names: copied, nameSet: set}
}

// NewFilter builds a filter from stored route columns. Persistence enforces
// mutual exclusivity at write time; if a legacy row carries both a substring
// and a name list, the substring wins. That precedence is a documented
// tie-break, asserted by tests, not something callers may rely on silently.
func NewFilter(substring string, names []string) ItemFilter {
	if substring != "" {
		return SubstringFilter(substring)
	}
	return NamesFilter(names)
}

// Kind reports which variant is populated. The zero value reports FilterAll.
func (f ItemFilter) Kind() FilterKind {
	if f.kind == "" {
		return FilterAll
	}
	return f.kind
}

// Substring returns the literal for FilterSubstring filters, else "".
func (f ItemFilter) Substring() string { return f.substring }

// Names returns a copy of the allow-list for FilterNames filters.
func (f ItemFilter) Names() []string {
	if len(f.names) == 0 {
		return nil
	}
	copied := make([]string, len(f.names))
	copy(copied, f.names)
	return copied
}

// Matches reports whether an item identifier passes the filter.
func (f ItemFilter) Matches(item string) bool {
	switch f.Kind() {
	case FilterSubstring:
		return strings.Contains(item, f.substring)
	case FilterNames:
		_, ok := f.nameSet[item]
		return ok
	default:
		return true
	}
}

type filterJSON struct {
	Kind  FilterKind `json:"kind"`
	Value string     `json:"value,omitempty"`
	Names []string   `json:"names,omitempty"`
}

// MarshalJSON encodes the filter as {kind, value?, names?}.
func (f ItemFilter) MarshalJSON() ([]byte, error) {
	out := filterJSON{Kind: f.Kind()}
	switch out.Kind {
	case FilterSubstring:
		out.Value = f.substring
	case FilterNames:
		out.Names = f.names
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the {kind, value?, names?} wire form.
func (f *ItemFilter) UnmarshalJSON(data []byte) error {
	var in filterJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "", FilterAll:
		*f = AllItems()
	case FilterSubstring:
		*f = SubstringFilter(in.Value)
	case FilterNames:
		*f = NamesFilter(in.Names)
	default:
		return fmt.Errorf("unknown filter kind %q", in.Kind)
	}
	return nil
}
