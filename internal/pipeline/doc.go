// Package pipeline drives an encoding session: it accepts full frames and
// generations of rectangular patches, composes each generation onto the
// session canvas, and submits the result to an encoder sink, re-submitting
// the previous frame so that output time tracks input time.
//
// Two variants share one API. By default patches are buffered in memory and a
// generation is encoded inside EndGeneration. With WithFragmentStore, patches
// are persisted to a store.Storage under the session ID and a background loop
// encodes closed generations strictly in order; Flush waits for it.
//
// # Lifecycle
//
//	Idle --first emission--> Active --Close/Abort/encoder failure--> Closed
//
// Configuration setters work only while Idle. The sink is opened lazily, so an
// idle session never touches its output.
//
// # Errors
//
// Apart from context errors, a Session reports failures as *Error values
// carrying an ErrorCode; each matches its code's sentinel with errors.Is. An encoder failure is fatal;
// afterwards every call returns a SESSION_CLOSED error.
package pipeline
