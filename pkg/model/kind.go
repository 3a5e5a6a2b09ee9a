package model

import (
	"fmt"
	"strings"
)

// InputKind enumerates the input behaviours a field can request. The zero value
// is KindText, which is also the fallback for unrecognised kinds.
type InputKind uint8

const (
	KindText InputKind = iota
	KindNumber
	KindDropdown
	KindSlider
	KindCheckbox
	KindRadio

	// KindCount is the number of defined kinds. Tables indexed by InputKind
	// should be sized with it.
	KindCount int = iota
)

var kindNames = [KindCount]string{
	KindText:     "text",
	KindNumber:   "number",
	KindDropdown: "dropdown",
	KindSlider:   "slider",
	KindCheckbox: "checkbox",
	KindRadio:    "radio",
}

// Kinds returns every defined kind in declaration order.
func Kinds() []InputKind {
	out := make([]InputKind, KindCount)
	for i := range out {
		out[i] = InputKind(i)
	}
	return out
}

// String reports the wire name of the kind.
func (k InputKind) String() string {
	if int(k) < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("InputKind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k InputKind) Valid() bool {
	return int(k) < KindCount
}

// MarshalText encodes the kind using its wire name.
func (k InputKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("model: invalid input kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name. Unknown names decode to KindText; use
// ResolveInputKind when the secondary type attribute is available.
func (k *InputKind) UnmarshalText(text []byte) error {
	*k = ResolveInputKind(string(text), "")
	return nil
}

// ResolveInputKind maps a raw input kind plus the descriptor's type attribute
// onto the closed enumeration. dropdown, slider, checkbox and radio are taken
// as-is; anything else lands on number when either value says "number" and
// on text otherwise.
func ResolveInputKind(raw, typ string) InputKind {
	switch normalizeKind(raw) {
	case "dropdown":
		return KindDropdown
	case "slider":
		return KindSlider
	case "checkbox":
		return KindCheckbox
	case "radio":
		return KindRadio
	case "number":
		return KindNumber
	}
	if normalizeKind(typ) == "number" {
		return KindNumber
	}
	return KindText
}

func normalizeKind(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
