package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// Registered codes.
const (
	CodeUnsupportedVersion = "P001"
	CodeUnknownPayload     = "P002"
	CodeSessionNotFound    = "P003"
	CodePageNotFound       = "P004"
	CodeBadWidgetState     = "P005"
	CodeDecodeFailed       = "P006"

	CodeHandlerFailed   = "A001"
	CodeHandlerPanicked = "A002"
	CodeRenderFailed    = "A003"

	CodeInvalidEndpoint = "R001"
	CodeMissingAPIKey   = "R002"
	CodeNoPages         = "R003"

	CodeConnectionLost    = "T001"
	CodeReconnectGaveUp   = "T002"
	CodeResponseTimedOut  = "T003"
	CodeSnapshotIOFailure = "T004"

	CodeInvalidConfig  = "C001"
	CodeConfigNotFound = "C002"
	CodeConfigParse    = "C003"

	CodeUnknownFormat = "X001"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (P001-P099)
	// ============================================

	CodeUnsupportedVersion: {
		Category: CategoryProtocol,
		Message:  "Unsupported protocol version",
		Detail:   "The relay sent a message with a protocol version this runtime does not speak.",
	},
	CodeUnknownPayload: {
		Category: CategoryProtocol,
		Message:  "Unknown payload",
		Detail:   "The message carries a payload tag this runtime does not handle.",
	},
	CodeSessionNotFound: {
		Category: CategoryProtocol,
		Message:  "Session not found",
		Detail:   "A rerun arrived for a session that was never initialized or has expired.",
	},
	CodePageNotFound: {
		Category: CategoryProtocol,
		Message:  "Page not found",
		Detail:   "The page id is not in the registered page catalogue.",
	},
	CodeBadWidgetState: {
		Category: CategoryProtocol,
		Message:  "Malformed widget state",
		Detail:   "A submitted widget state has an unknown kind or an undecodable body. No state was changed.",
	},
	CodeDecodeFailed: {
		Category: CategoryProtocol,
		Message:  "Message decode failed",
		Detail:   "An inbound frame could not be decoded and was dropped.",
	},

	// ============================================
	// Application Errors (A001-A099)
	// ============================================

	CodeHandlerFailed: {
		Category: CategoryApplication,
		Message:  "Page handler failed",
		Detail:   "The page handler returned an error. The session is intact and the client may retry.",
	},
	CodeHandlerPanicked: {
		Category: CategoryApplication,
		Message:  "Page handler panicked",
		Detail:   "The page handler panicked. The panic was recovered and the session is intact.",
	},
	CodeRenderFailed: {
		Category: CategoryApplication,
		Message:  "Widget render failed",
		Detail:   "A widget could not be encoded or queued for the client.",
	},

	// ============================================
	// Registration Errors (R001-R099)
	// ============================================

	CodeInvalidEndpoint: {
		Category: CategoryRegistration,
		Message:  "Invalid relay endpoint",
		Detail:   "The relay endpoint must be an absolute ws:// or wss:// URL.",
	},
	CodeMissingAPIKey: {
		Category: CategoryRegistration,
		Message:  "Missing API key",
		Detail:   "An API key is required to authenticate with the relay.",
	},
	CodeNoPages: {
		Category: CategoryRegistration,
		Message:  "No pages registered",
		Detail:   "The runtime was started without any pages in its registry.",
	},

	// ============================================
	// Transport Errors (T001-T099)
	// ============================================

	CodeConnectionLost: {
		Category: CategoryTransport,
		Message:  "Relay connection lost",
		Detail:   "The connection to the relay dropped and is being re-established.",
	},
	CodeReconnectGaveUp: {
		Category: CategoryTransport,
		Message:  "Reconnect attempts exhausted",
		Detail:   "The runtime could not reach the relay within the reconnect budget and stopped trying.",
	},
	CodeResponseTimedOut: {
		Category: CategoryTransport,
		Message:  "Response timed out",
		Detail:   "The relay did not answer a correlated request in time.",
	},
	CodeSnapshotIOFailure: {
		Category: CategoryTransport,
		Message:  "Session snapshot I/O failed",
		Detail:   "A session snapshot could not be saved or loaded. In-memory state is unaffected.",
	},

	// ============================================
	// Config Errors (C001-C099)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	CodeConfigNotFound: {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The configuration file does not exist or is not readable.",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Config file could not be parsed",
		Detail:   "The configuration file is not valid TOML.",
	},

	// ============================================
	// CLI Errors (X001-X099)
	// ============================================

	CodeUnknownFormat: {
		Category: CategoryCLI,
		Message:  "Unknown output format",
		Detail:   "Log output supports text and json. CLI errors support text, compact and json.",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
