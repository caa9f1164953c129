// Package errors provides coded, categorized errors for pagewire.
//
// Every failure the runtime reports falls in one category, and the category
// decides what happens to it:
//   - transport: retried through reconnect and backoff, never surfaced
//   - protocol: the current message fails and no session state changes
//   - application: reported upstream as ScriptFinished FAILURE plus an
//     Exception; the session stays intact
//   - registration: fatal at startup
//
// # Error Codes
//
// Each code (e.g. "P003") maps to a category, a short message and an
// explanation:
//
//	err := errors.New(errors.CodeSessionNotFound).Wrap(cause)
//	fmt.Println(err.Format())
//	// ERROR P003: Session not found
//	//
//	//   Cause: sess-42
//	//
//	//   A rerun arrived for a session that was never initialized or has expired.
//
// Errors with the same code match under errors.Is.
package errors
