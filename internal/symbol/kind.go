package symbol

import "strings"

// Kind classifies what a documented symbol is. The set is closed for a given
// schema version; names that a reader does not know decode to KindSymbol so
// that newer artifacts stay loadable.
type Kind int

const (
	KindSymbol Kind = iota
	KindFunction
	KindStruct
	KindField
	KindFile
	KindMacro
	KindPage
	KindVariable
	KindTypedef
	KindEnum
	KindEnumValue
	KindUnion
	KindNamespace
	KindClass
)

var kindNames = [...]string{
	KindSymbol:    "symbol",
	KindFunction:  "function",
	KindStruct:    "struct",
	KindField:     "field",
	KindFile:      "file",
	KindMacro:     "macro",
	KindPage:      "page",
	KindVariable:  "variable",
	KindTypedef:   "typedef",
	KindEnum:      "enum",
	KindEnumValue: "enumvalue",
	KindUnion:     "union",
	KindNamespace: "namespace",
	KindClass:     "class",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindSymbol]
	}
	return kindNames[k]
}

// ParseKind maps a kind name to its Kind. ok is false when the name is not
// known, in which case KindSymbol is returned.
func ParseKind(name string) (k Kind, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return KindSymbol, false
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	*k, _ = ParseKind(string(text))
	return nil
}
