package widget

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/vango-dev/pagewire/pkg/protocol"
)

func TestStoreTypedAccessors(t *testing.T) {
	s := NewStore()
	s.Set(&ButtonState{ID: "b", Label: "Go"})
	s.Set(&FormState{ID: "f"})

	if b, ok := s.Button("b"); !ok || b.Label != "Go" {
		t.Fatalf("Button(b) = %v, %v", b, ok)
	}
	if _, ok := s.Form("b"); ok {
		t.Error("Form(b) matched a button")
	}
	if _, ok := s.TextInput("missing"); ok {
		t.Error("TextInput(missing) reported ok")
	}
	if _, ok := s.Form("f"); !ok {
		t.Error("Form(f) not found")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStoreResetButtons(t *testing.T) {
	s := NewStore()
	s.Set(&ButtonState{ID: "b1", Clicked: true})
	s.Set(&ButtonState{ID: "b2", Clicked: false})
	s.Set(&FormState{ID: "f", Submitted: true})
	s.Set(&CheckboxState{ID: "c", Checked: true})

	s.ResetButtons()

	for _, id := range []string{"b1", "b2"} {
		if b, _ := s.Button(id); b.Clicked {
			t.Errorf("button %s still clicked", id)
		}
	}
	if f, _ := s.Form("f"); f.Submitted {
		t.Error("form still submitted")
	}
	if c, _ := s.Checkbox("c"); !c.Checked {
		t.Error("checkbox is level state and must not be reset")
	}
}

func TestStoreResetAndOverlay(t *testing.T) {
	s := NewStore()
	s.Set(&TextInputState{ID: "t", Value: "old"})
	s.Set(&CheckboxState{ID: "c"})

	s.SetStates([]State{&TextInputState{ID: "t", Value: "new"}, nil})
	if ti, _ := s.TextInput("t"); ti.Value != "new" {
		t.Errorf("overlay value = %q, want new", ti.Value)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	s.ResetStates()
	if s.Len() != 0 {
		t.Errorf("Len() after reset = %d, want 0", s.Len())
	}
}

func TestConvertRoundTrip(t *testing.T) {
	states := []State{
		&ButtonState{ID: "1", Label: "Save", Clicked: true},
		&TextInputState{ID: "2", Label: "Name", Placeholder: "you", MaxLength: 20, Value: "ana"},
		&NumberInputState{ID: "3", Label: "Age", Min: 0, Max: 120, Step: 1, Value: 42},
		&CheckboxState{ID: "4", Label: "ok", Checked: true},
		&SelectState{ID: "5", Label: "pick", Options: []string{"a", "b"}, Value: "b"},
		&TextState{ID: "6", Body: "hello"},
		&TableState{ID: "7", Columns: []string{"x"}, Rows: [][]string{{"1"}, {"2"}}},
		&FormState{ID: "8", Label: "f", Submitted: true},
		&ColumnsState{ID: "9", Weights: []float64{0.5, 0.25, 0.25}},
	}
	for _, st := range states {
		ws, err := Encode(st)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", st.Kind(), err)
		}
		if Kind(ws.Kind) != st.Kind() || ws.ID != st.WidgetID() {
			t.Fatalf("Encode(%s) header = %d/%q", st.Kind(), ws.Kind, ws.ID)
		}
		got, err := Decode(ws)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", st.Kind(), err)
		}
		if !reflect.DeepEqual(got, st) {
			t.Errorf("%s: got %#v, want %#v", st.Kind(), got, st)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(protocol.WidgetState{ID: "x", Kind: 0xEE})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}

	_, err = DecodeAll([]protocol.WidgetState{
		{ID: "ok", Kind: uint8(KindText), Data: []byte{0}},
		{ID: "bad", Kind: 0},
	})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("DecodeAll err = %v, want ErrUnknownKind", err)
	}
}

func TestDecodeTextInputMaxLengthRange(t *testing.T) {
	encode := func(maxLen uint64) protocol.WidgetState {
		e := protocol.NewEncoder()
		e.WriteString("Name")
		e.WriteString("")
		e.WriteUvarint(maxLen)
		e.WriteString("")
		return protocol.WidgetState{ID: "t", Kind: uint8(KindTextInput), Data: e.Bytes()}
	}

	for _, maxLen := range []uint64{math.MaxInt32 + 1, math.MaxInt64 + 1, math.MaxUint64} {
		if st, err := Decode(encode(maxLen)); err == nil {
			t.Errorf("max length %d accepted as %+v", maxLen, st)
		}
	}

	st, err := Decode(encode(math.MaxInt32))
	if err != nil {
		t.Fatal(err)
	}
	if got := st.(*TextInputState).MaxLength; got != math.MaxInt32 {
		t.Errorf("MaxLength = %d", got)
	}
}

func TestMarshalStore(t *testing.T) {
	s := NewStore()
	s.Set(&ButtonState{ID: "b", Label: "Go"})
	s.Set(&SelectState{ID: "s", Options: []string{"x"}, Value: "x"})

	data, err := MarshalStore(s)
	if err != nil {
		t.Fatal(err)
	}
	again, err := MarshalStore(s)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, again) {
		t.Error("MarshalStore is not deterministic")
	}

	restored, err := UnmarshalStore(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(restored.Snapshot(), s.Snapshot()) {
		t.Errorf("restored = %#v", restored.Snapshot())
	}
}
