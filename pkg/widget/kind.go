// Package widget defines widget kinds, their typed states, the per-session
// widget state store and the converters between typed states and the wire
// form in package protocol.
package widget

import "fmt"

// Kind is the widget kind tag. It is also the Kind byte of protocol.WidgetState.
type Kind uint8

const (
	KindButton      Kind = 0x01
	KindTextInput   Kind = 0x02
	KindNumberInput Kind = 0x03
	KindCheckbox    Kind = 0x04
	KindSelect      Kind = 0x05
	KindText        Kind = 0x06
	KindTable       Kind = 0x07
	KindForm        Kind = 0x08
	KindColumns     Kind = 0x09
)

// String returns the string representation of the kind. It is part of the
// widget id derivation, so existing names must never change.
func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindTextInput:
		return "text_input"
	case KindNumberInput:
		return "number_input"
	case KindCheckbox:
		return "checkbox"
	case KindSelect:
		return "select"
	case KindText:
		return "text"
	case KindTable:
		return "table"
	case KindForm:
		return "form"
	case KindColumns:
		return "columns"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindButton && k <= KindColumns
}
