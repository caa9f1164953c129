// Package runtime runs pagewire pages in response to relay messages.
//
// The relay sends three messages per client session:
//
//	InitializeClient  start (or resume) a session on a page and run it
//	RerunPage         apply the client's widget states and run the page again
//	CloseSession      park the session so a returning client can resume it
//
// Each page run emits one RenderWidget per widget, then a ScriptFinished
// carrying SUCCESS or FAILURE. A failed message is followed by an
// Exception with a title, message and, for panics, the stack.
//
// Messages for one session are handled strictly in order, one at a time.
// Different sessions run concurrently, so page handlers must not share
// mutable state without their own locking.
package runtime
