package mqtt

import "testing"

// NewFakeLinkClient returns a Client over the fake paho client used by this
// package's tests, and a function that drops the link with err.
func NewFakeLinkClient(t *testing.T, opts Options) (*Client, func(err error)) {
	t.Helper()

	c, fake := newTestClient(t, opts)
	return c, fake.lose
}
