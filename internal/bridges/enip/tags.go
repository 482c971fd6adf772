package enip

import (
	"fmt"
	"sort"
	"strings"
)

// TagType is the CIP data type used to decode a tag read.
type TagType string

// Supported tag types.
const (
	TypeREAL   TagType = "REAL"
	TypeLREAL  TagType = "LREAL"
	TypeSINT   TagType = "SINT"
	TypeINT    TagType = "INT"
	TypeDINT   TagType = "DINT"
	TypeLINT   TagType = "LINT"
	TypeUSINT  TagType = "USINT"
	TypeUINT   TagType = "UINT"
	TypeUDINT  TagType = "UDINT"
	TypeBOOL   TagType = "BOOL"
	TypeSTRING TagType = "STRING"
)

// DefaultTagType is used for tags without an explicit type.
const DefaultTagType = TypeREAL

var knownTagTypes = map[TagType]bool{
	TypeREAL: true, TypeLREAL: true,
	TypeSINT: true, TypeINT: true, TypeDINT: true, TypeLINT: true,
	TypeUSINT: true, TypeUINT: true, TypeUDINT: true,
	TypeBOOL: true, TypeSTRING: true,
}

// ParseTagType parses a case-insensitive type name. Empty means DefaultTagType.
func ParseTagType(s string) (TagType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultTagType, nil
	}
	t := TagType(s)
	if !knownTagTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnknownTagType, s)
	}
	return t, nil
}

// TagTypes maps tag names to their read type.
type TagTypes map[string]TagType

// ParseTagTypes converts the configured name→type map.
// Every invalid entry is reported in one error.
func ParseTagTypes(raw map[string]string) (TagTypes, error) {
	types := make(TagTypes, len(raw))
	var bad []string
	for tag, name := range raw {
		t, err := ParseTagType(name)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s=%s", tag, name))
			continue
		}
		types[tag] = t
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTagType, strings.Join(bad, ", "))
	}
	return types, nil
}

// For returns the type for tag, falling back to DefaultTagType.
func (t TagTypes) For(tag string) TagType {
	if typ, ok := t[tag]; ok {
		return typ
	}
	return DefaultTagType
}
