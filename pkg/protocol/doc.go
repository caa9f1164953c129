// Package protocol implements the binary wire protocol spoken between a
// pagewire runtime and the relay.
//
// Every WebSocket message carries exactly one protocol Message. The transport
// provides message boundaries, so there is no additional framing.
//
// # Wire Format
//
//	┌──────────┬──────────┬──────────────────────┬─────────────────┐
//	│ Version  │ Type     │ Correlation ID       │ Payload         │
//	│ (1 byte) │ (1 byte) │ (len-prefixed utf-8) │ (type specific) │
//	└──────────┴──────────┴──────────────────────┴─────────────────┘
//
// # Payload Types
//
//   - InitializeHost (0x01): runtime announces itself and its page catalogue
//   - InitializeClient (0x02): a client session opened a page
//   - RenderWidget (0x03): one widget's state at a structural path
//   - RerunPage (0x04): rerun a page with client-submitted widget values
//   - CloseSession (0x05): a client session went away
//   - ScriptFinished (0x06): outcome of a page run
//   - Exception (0x07): failure report for a session
//
// # Encoding
//
//   - Varint: Compact encoding for small integers (protobuf-style)
//   - ZigZag: Signed integers (widget path components) as unsigned varints
//   - Length-prefixed: Strings and byte arrays prefixed with varint length
//   - Big-endian: float64 values
//
// Widget bodies inside WidgetState are opaque to this package; the widget
// package owns their per-kind layout.
//
// Decoding is bounded by the limits in limits.go so a hostile length prefix
// cannot force a large allocation.
package protocol
