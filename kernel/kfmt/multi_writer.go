package kfmt

import "io"

// maxSinks is the number of writers a MultiWriter can fan out to.
const maxSinks = 4

// MultiWriter is an io.Writer that duplicates its writes to all attached
// sinks, in attachment order. Unlike io.MultiWriter it is backed by a fixed
// array and a failing sink does not stop the remaining sinks from receiving
// the data.
type MultiWriter struct {
	sinks [maxSinks]io.Writer
	count int
}

// Attach adds w to the list of sinks. It returns false if w is nil or if
// all sink slots are already in use.
func (mw *MultiWriter) Attach(w io.Writer) bool {
	if w == nil || mw.count == maxSinks {
		return false
	}

	mw.sinks[mw.count] = w
	mw.count++
	return true
}

// Len returns the number of attached sinks.
func (mw *MultiWriter) Len() int {
	return mw.count
}

// Write writes p to every attached sink and always reports len(p) bytes as
// written.
func (mw *MultiWriter) Write(p []byte) (int, error) {
	for i := 0; i < mw.count; i++ {
		mw.sinks[i].Write(p)
	}

	return len(p), nil
}
