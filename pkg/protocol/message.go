package protocol

import (
	"errors"
	"fmt"
)

// Version is written as the first byte of every encoded message.
const Version byte = 1

var (
	ErrUnsupportedVersion = errors.New("protocol: unsupported message version")
	ErrUnknownPayload     = errors.New("protocol: unknown payload type")
	ErrTrailingBytes      = errors.New("protocol: trailing bytes after message")
	ErrNilPayload         = errors.New("protocol: nil payload")
)

// PayloadType is the wire tag of a message payload.
type PayloadType byte

const (
	TypeInitializeHost   PayloadType = 0x01 // runtime -> relay, page catalogue
	TypeInitializeClient PayloadType = 0x02 // relay -> runtime
	TypeRenderWidget     PayloadType = 0x03 // runtime -> relay
	TypeRerunPage        PayloadType = 0x04 // relay -> runtime
	TypeCloseSession     PayloadType = 0x05 // relay -> runtime
	TypeScriptFinished   PayloadType = 0x06 // runtime -> relay
	TypeException        PayloadType = 0x07 // runtime -> relay
)

// String returns the string representation of the payload type.
func (t PayloadType) String() string {
	switch t {
	case TypeInitializeHost:
		return "InitializeHost"
	case TypeInitializeClient:
		return "InitializeClient"
	case TypeRenderWidget:
		return "RenderWidget"
	case TypeRerunPage:
		return "RerunPage"
	case TypeCloseSession:
		return "CloseSession"
	case TypeScriptFinished:
		return "ScriptFinished"
	case TypeException:
		return "Exception"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}

// Payload is the closed set of message bodies. Only the types in this
// package implement it.
type Payload interface {
	Type() PayloadType
	encodeTo(e *Encoder)
}

// Message is the protocol envelope. ID correlates requests with replies;
// it may be empty for fire-and-forget messages.
type Message struct {
	ID      string
	Payload Payload
}

// PageInfo describes one registered page in the catalogue.
type PageInfo struct {
	ID           string
	Name         string
	Route        string
	AccessGroups []string
}

// InitializeHost announces the runtime and its page catalogue.
type InitializeHost struct {
	APIKey     string
	SDKName    string
	SDKVersion string
	Pages      []PageInfo
}

// InitializeClient starts (or resumes) a session on a page.
type InitializeClient struct {
	SessionID string
	PageID    string
}

// RenderWidget carries one widget's state at a structural path.
type RenderWidget struct {
	SessionID string
	PageID    string
	Path      []int
	Widget    WidgetState
}

// RerunPage asks for a rerun with client-submitted widget values.
type RerunPage struct {
	SessionID string
	PageID    string
	States    []WidgetState
}

// CloseSession ends a session; state remains resumable for a while.
type CloseSession struct {
	SessionID string
}

// ScriptStatus is the outcome of a page run.
type ScriptStatus byte

const (
	StatusSuccess ScriptStatus = 0
	StatusFailure ScriptStatus = 1
)

func (s ScriptStatus) String() string {
	if s == StatusSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// ScriptFinished reports the outcome of a page run.
type ScriptFinished struct {
	SessionID string
	Status    ScriptStatus
}

// Exception reports a failure to the relay.
type Exception struct {
	SessionID  string
	Title      string
	Message    string
	StackTrace string
}

func (*InitializeHost) Type() PayloadType   { return TypeInitializeHost }
func (*InitializeClient) Type() PayloadType { return TypeInitializeClient }
func (*RenderWidget) Type() PayloadType     { return TypeRenderWidget }
func (*RerunPage) Type() PayloadType        { return TypeRerunPage }
func (*CloseSession) Type() PayloadType     { return TypeCloseSession }
func (*ScriptFinished) Type() PayloadType   { return TypeScriptFinished }
func (*Exception) Type() PayloadType        { return TypeException }

func (p *InitializeHost) encodeTo(e *Encoder) {
	e.WriteString(p.APIKey)
	e.WriteString(p.SDKName)
	e.WriteString(p.SDKVersion)
	e.WriteUvarint(uint64(len(p.Pages)))
	for _, pg := range p.Pages {
		e.WriteString(pg.ID)
		e.WriteString(pg.Name)
		e.WriteString(pg.Route)
		e.WriteStrings(pg.AccessGroups)
	}
}

func (p *InitializeClient) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
	e.WriteString(p.PageID)
}

func (p *RenderWidget) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
	e.WriteString(p.PageID)
	e.WritePath(p.Path)
	p.Widget.encodeTo(e)
}

func (p *RerunPage) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
	e.WriteString(p.PageID)
	e.WriteUvarint(uint64(len(p.States)))
	for i := range p.States {
		p.States[i].encodeTo(e)
	}
}

func (p *CloseSession) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
}

func (p *ScriptFinished) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
	e.WriteByte(byte(p.Status))
}

func (p *Exception) encodeTo(e *Encoder) {
	e.WriteString(p.SessionID)
	e.WriteString(p.Title)
	e.WriteString(p.Message)
	e.WriteString(p.StackTrace)
}

// EncodeMessage encodes a message to bytes.
//
// Format: [version:1][type:1][id:string][payload...]
func EncodeMessage(m *Message) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeMessageTo(e, m); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeMessageTo encodes a message using the provided encoder.
func EncodeMessageTo(e *Encoder, m *Message) error {
	if m == nil || m.Payload == nil {
		return ErrNilPayload
	}
	e.WriteByte(Version)
	e.WriteByte(byte(m.Payload.Type()))
	e.WriteString(m.ID)
	m.Payload.encodeTo(e)
	return nil
}

// DecodeMessage decodes a message from bytes. The whole buffer must be
// consumed.
func DecodeMessage(data []byte) (*Message, error) {
	d := NewDecoder(data)

	version, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	id, err := d.ReadString()
	if err != nil {
		return nil, err
	}

	var payload Payload
	switch PayloadType(tag) {
	case TypeInitializeHost:
		payload, err = decodeInitializeHost(d)
	case TypeInitializeClient:
		payload, err = decodeInitializeClient(d)
	case TypeRenderWidget:
		payload, err = decodeRenderWidget(d)
	case TypeRerunPage:
		payload, err = decodeRerunPage(d)
	case TypeCloseSession:
		payload, err = decodeCloseSession(d)
	case TypeScriptFinished:
		payload, err = decodeScriptFinished(d)
	case TypeException:
		payload, err = decodeException(d)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPayload, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", PayloadType(tag), err)
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}

	return &Message{ID: id, Payload: payload}, nil
}

func decodeInitializeHost(d *Decoder) (*InitializeHost, error) {
	var p InitializeHost
	var err error
	if p.APIKey, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.SDKName, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.SDKVersion, err = d.ReadString(); err != nil {
		return nil, err
	}
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	p.Pages = make([]PageInfo, 0, n)
	for i := 0; i < n; i++ {
		var pg PageInfo
		if pg.ID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if pg.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if pg.Route, err = d.ReadString(); err != nil {
			return nil, err
		}
		if pg.AccessGroups, err = d.ReadStrings(); err != nil {
			return nil, err
		}
		p.Pages = append(p.Pages, pg)
	}
	return &p, nil
}

func decodeInitializeClient(d *Decoder) (*InitializeClient, error) {
	sessionID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	pageID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &InitializeClient{SessionID: sessionID, PageID: pageID}, nil
}

func decodeRenderWidget(d *Decoder) (*RenderWidget, error) {
	var p RenderWidget
	var err error
	if p.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.PageID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.Path, err = d.ReadPath(); err != nil {
		return nil, err
	}
	if p.Widget, err = decodeWidgetState(d); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeRerunPage(d *Decoder) (*RerunPage, error) {
	var p RerunPage
	var err error
	if p.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.PageID, err = d.ReadString(); err != nil {
		return nil, err
	}
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	p.States = make([]WidgetState, 0, n)
	for i := 0; i < n; i++ {
		ws, err := decodeWidgetState(d)
		if err != nil {
			return nil, err
		}
		p.States = append(p.States, ws)
	}
	return &p, nil
}

func decodeCloseSession(d *Decoder) (*CloseSession, error) {
	sessionID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &CloseSession{SessionID: sessionID}, nil
}

func decodeScriptFinished(d *Decoder) (*ScriptFinished, error) {
	sessionID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	status, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	return &ScriptFinished{SessionID: sessionID, Status: ScriptStatus(status)}, nil
}

func decodeException(d *Decoder) (*Exception, error) {
	var p Exception
	var err error
	if p.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.Title, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.Message, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.StackTrace, err = d.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}
