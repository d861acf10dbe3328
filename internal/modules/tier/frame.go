package tier

import "strings"

// Audience is the API surface a request arrived on.
type Audience string

const (
	// AudienceContent is the public, unauthenticated surface.
	AudienceContent Audience = "content"
	// AudienceAdmin is the staff surface.
	AudienceAdmin Audience = "admin"
)

// Frame carries the per-request inputs of a serializer run and receives its output.
type Frame struct {
	Audience Audience
	// QueryInclude is the raw comma-separated ?include= value.
	QueryInclude string
	// OptionInclude holds include names already split by the caller.
	OptionInclude []string
	// Response is assigned exactly once by the serializer.
	Response any
}

// IncludeSet is a set of requested optional field names.
type IncludeSet map[string]struct{}

// Has reports whether name was requested.
func (s IncludeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Includes merges both include sources of the frame into one set.
func (f *Frame) Includes() IncludeSet {
	if f == nil {
		return IncludeSet{}
	}
	return ParseIncludes(f.QueryInclude, f.OptionInclude)
}

// ParseIncludes splits query on commas and unions the result with options.
// Names are trimmed and empty names are dropped.
func ParseIncludes(query string, options []string) IncludeSet {
	set := IncludeSet{}
	add := func(name string) {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	if query != "" {
		for _, name := range strings.Split(query, ",") {
			add(name)
		}
	}
	for _, name := range options {
		add(name)
	}
	return set
}

// Relations derives which to-many relations the frame needs loaded.
// Admin reads always carry stripe prices.
func (f *Frame) Relations() Relations {
	includes := f.Includes()
	return Relations{
		StripePrices: includes.Has("stripe_prices") || f.Audience == AudienceAdmin,
		Benefits:     includes.Has("benefits"),
	}
}
