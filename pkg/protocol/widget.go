package protocol

// WidgetState is the wire form of one widget's state. Kind is the widget
// kind tag; Data is the kind-specific body produced by the widget
// converters and is opaque at this layer.
type WidgetState struct {
	ID   string
	Kind uint8
	Data []byte
}

func (w *WidgetState) encodeTo(e *Encoder) {
	e.WriteString(w.ID)
	e.WriteByte(w.Kind)
	e.WriteLenBytes(w.Data)
}

func decodeWidgetState(d *Decoder) (WidgetState, error) {
	var w WidgetState
	var err error
	if w.ID, err = d.ReadString(); err != nil {
		return w, err
	}
	if w.Kind, err = d.ReadByte(); err != nil {
		return w, err
	}
	if w.Data, err = d.ReadLenBytes(); err != nil {
		return w, err
	}
	return w, nil
}
