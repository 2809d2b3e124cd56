package tcp

type Option func(*Listener)

// WithMaxConnections bounds the number of connections handed out by NetListener
// that may be open at the same time. Zero means unbounded.
func WithMaxConnections(n int) Option {
	return func(listener *Listener) {
		listener.maxConnections = n
	}
}

// WithRestartAttempts sets how many times the socket is bound again after the
// accept loop fails. Zero makes the first accept failure final.
func WithRestartAttempts(n int) Option {
	return func(listener *Listener) {
		listener.restartAttempts = n
	}
}
