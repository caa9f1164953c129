package widget

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/vango-dev/pagewire/pkg/protocol"
)

// ErrUnknownKind is returned when a wire state carries a kind tag this
// package does not know.
var ErrUnknownKind = errors.New("widget: unknown kind")

// Encode converts a typed state to its wire form.
func Encode(st State) (protocol.WidgetState, error) {
	e := protocol.NewEncoder()
	switch v := st.(type) {
	case *ButtonState:
		e.WriteString(v.Label)
		e.WriteBool(v.Disabled)
		e.WriteBool(v.Clicked)
	case *TextInputState:
		e.WriteString(v.Label)
		e.WriteString(v.Placeholder)
		e.WriteUvarint(uint64(max(v.MaxLength, 0)))
		e.WriteString(v.Value)
	case *NumberInputState:
		e.WriteString(v.Label)
		e.WriteFloat64(v.Min)
		e.WriteFloat64(v.Max)
		e.WriteFloat64(v.Step)
		e.WriteFloat64(v.Value)
	case *CheckboxState:
		e.WriteString(v.Label)
		e.WriteBool(v.Checked)
	case *SelectState:
		e.WriteString(v.Label)
		e.WriteStrings(v.Options)
		e.WriteString(v.Value)
	case *TextState:
		e.WriteString(v.Body)
	case *TableState:
		e.WriteStrings(v.Columns)
		e.WriteUvarint(uint64(len(v.Rows)))
		for _, row := range v.Rows {
			e.WriteStrings(row)
		}
	case *FormState:
		e.WriteString(v.Label)
		e.WriteBool(v.ClearOnSubmit)
		e.WriteBool(v.Submitted)
	case *ColumnsState:
		e.WriteFloats(v.Weights)
	case nil:
		return protocol.WidgetState{}, fmt.Errorf("%w: nil state", ErrUnknownKind)
	default:
		return protocol.WidgetState{}, fmt.Errorf("%w: %T", ErrUnknownKind, st)
	}

	data := make([]byte, e.Len())
	copy(data, e.Bytes())
	return protocol.WidgetState{ID: st.WidgetID(), Kind: uint8(st.Kind()), Data: data}, nil
}

// Decode converts a wire state to its typed form.
func Decode(ws protocol.WidgetState) (State, error) {
	d := protocol.NewDecoder(ws.Data)
	var (
		st  State
		err error
	)
	switch Kind(ws.Kind) {
	case KindButton:
		v := &ButtonState{ID: ws.ID}
		if v.Label, err = d.ReadString(); err == nil {
			if v.Disabled, err = d.ReadBool(); err == nil {
				v.Clicked, err = d.ReadBool()
			}
		}
		st = v
	case KindTextInput:
		v := &TextInputState{ID: ws.ID}
		err = decodeTextInput(d, v)
		st = v
	case KindNumberInput:
		v := &NumberInputState{ID: ws.ID}
		err = decodeNumberInput(d, v)
		st = v
	case KindCheckbox:
		v := &CheckboxState{ID: ws.ID}
		if v.Label, err = d.ReadString(); err == nil {
			v.Checked, err = d.ReadBool()
		}
		st = v
	case KindSelect:
		v := &SelectState{ID: ws.ID}
		if v.Label, err = d.ReadString(); err == nil {
			if v.Options, err = d.ReadStrings(); err == nil {
				v.Value, err = d.ReadString()
			}
		}
		st = v
	case KindText:
		v := &TextState{ID: ws.ID}
		v.Body, err = d.ReadString()
		st = v
	case KindTable:
		v := &TableState{ID: ws.ID}
		err = decodeTable(d, v)
		st = v
	case KindForm:
		v := &FormState{ID: ws.ID}
		if v.Label, err = d.ReadString(); err == nil {
			if v.ClearOnSubmit, err = d.ReadBool(); err == nil {
				v.Submitted, err = d.ReadBool()
			}
		}
		st = v
	case KindColumns:
		v := &ColumnsState{ID: ws.ID}
		v.Weights, err = d.ReadFloats()
		st = v
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, ws.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("widget: decode %s %q: %w", Kind(ws.Kind), ws.ID, err)
	}
	return st, nil
}

func decodeTextInput(d *protocol.Decoder, v *TextInputState) error {
	var err error
	if v.Label, err = d.ReadString(); err != nil {
		return err
	}
	if v.Placeholder, err = d.ReadString(); err != nil {
		return err
	}
	maxLen, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	if maxLen > math.MaxInt32 {
		return fmt.Errorf("max length %d out of range", maxLen)
	}
	v.MaxLength = int(maxLen)
	v.Value, err = d.ReadString()
	return err
}

func decodeNumberInput(d *protocol.Decoder, v *NumberInputState) error {
	var err error
	if v.Label, err = d.ReadString(); err != nil {
		return err
	}
	for _, f := range []*float64{&v.Min, &v.Max, &v.Step, &v.Value} {
		if *f, err = d.ReadFloat64(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTable(d *protocol.Decoder, v *TableState) error {
	var err error
	if v.Columns, err = d.ReadStrings(); err != nil {
		return err
	}
	n, err := d.ReadCollectionCount()
	if err != nil {
		return err
	}
	v.Rows = make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row, err := d.ReadStrings()
		if err != nil {
			return err
		}
		v.Rows = append(v.Rows, row)
	}
	return nil
}

// DecodeAll decodes every wire state. It fails on the first bad entry and
// returns nothing, so callers can reject a whole batch without mutating
// anything.
func DecodeAll(states []protocol.WidgetState) ([]State, error) {
	out := make([]State, 0, len(states))
	for _, ws := range states {
		st, err := Decode(ws)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// MarshalStore encodes a whole store, ordered by widget id so equal stores
// produce equal bytes.
func MarshalStore(s *Store) ([]byte, error) {
	snap := s.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(len(ids)))
	for _, id := range ids {
		ws, err := Encode(snap[id])
		if err != nil {
			return nil, err
		}
		e.WriteString(ws.ID)
		e.WriteByte(ws.Kind)
		e.WriteLenBytes(ws.Data)
	}
	return e.Bytes(), nil
}

// UnmarshalStore decodes bytes produced by MarshalStore into a new store.
func UnmarshalStore(data []byte) (*Store, error) {
	d := protocol.NewDecoder(data)
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	s := NewStore()
	for i := 0; i < n; i++ {
		var ws protocol.WidgetState
		if ws.ID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if ws.Kind, err = d.ReadByte(); err != nil {
			return nil, err
		}
		if ws.Data, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}
		st, err := Decode(ws)
		if err != nil {
			return nil, err
		}
		s.Set(st)
	}
	return s, nil
}
