package tcp

import (
	"context"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	singtcp "github.com/sagernet/sing/transport/tcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	DefaultRestartAttempts = 16

	restartDelayMin = 5 * time.Millisecond
	restartDelayMax = time.Second
)

// Listener turns the callback style sing TCP listener into a net.Listener.
// Each inbound connection is parked in its own goroutine until a caller of
// Accept takes it, and that goroutine returns once the connection is closed.
//
// The sing accept loop stops on its first accept error, including temporary
// ones such as EMFILE. When that happens the socket is bound again on the same
// address with backoff; once the attempts run out Accept returns the error.
type Listener struct {
	bind            netip.AddrPort
	logger          logrus.FieldLogger
	maxConnections  int
	restartAttempts int

	access  sync.Mutex
	bound   netip.AddrPort
	inbound *singtcp.Listener

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func NewListener(bind netip.AddrPort, logger logrus.FieldLogger, options ...Option) *Listener {
	l := &Listener{
		bind:            bind,
		bound:           bind,
		logger:          logger,
		restartAttempts: DefaultRestartAttempts,
		conns:           make(chan net.Conn),
		done:            make(chan struct{}),
	}
	for _, option := range options {
		option(l)
	}
	l.inbound = singtcp.NewTCPListener(bind, l)
	return l
}

func (l *Listener) Start() error {
	l.access.Lock()
	defer l.access.Unlock()
	err := l.inbound.Start()
	if err != nil {
		return E.Cause(err, "listen on ", l.bind)
	}
	// a restart must come back on the port picked for port 0
	if tcpAddr, ok := l.inbound.TCPListener.Addr().(*net.TCPAddr); ok {
		l.bound = netip.AddrPortFrom(l.bind.Addr(), uint16(tcpAddr.Port))
	}
	return nil
}

// NetListener returns the view of l that should be served from, with the
// connection bound applied.
func (l *Listener) NetListener() net.Listener {
	if l.maxConnections > 0 {
		return netutil.LimitListener(l, l.maxConnections)
	}
	return l
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		if l.err != nil {
			return nil, l.err
		}
		return nil, net.ErrClosed
	}
}

func (l *Listener) Close() error {
	return l.shutdown(nil)
}

// shutdown closes the listener; a non-nil cause is what Accept reports from then on.
func (l *Listener) shutdown(cause error) error {
	err := net.ErrClosed
	l.closeOnce.Do(func() {
		l.access.Lock()
		defer l.access.Unlock()
		l.err = cause
		close(l.done)
		err = l.inbound.Close()
	})
	return err
}

func (l *Listener) Addr() net.Addr {
	if socket := l.TCPListener(); socket != nil {
		return socket.Addr()
	}
	l.access.Lock()
	defer l.access.Unlock()
	return net.TCPAddrFromAddrPort(l.bound)
}

// TCPListener returns the socket currently bound, or nil before Start.
func (l *Listener) TCPListener() *net.TCPListener {
	l.access.Lock()
	defer l.access.Unlock()
	return l.inbound.TCPListener
}

func (l *Listener) NewConnection(ctx context.Context, conn net.Conn, metadata M.Metadata) error {
	l.logger.Debug("inbound TCP ", conn.RemoteAddr())
	tracked := &trackedConn{Conn: conn, closed: make(chan struct{})}
	select {
	case l.conns <- tracked:
	case <-l.done:
		common.Close(conn)
		return nil
	}
	<-tracked.closed
	return nil
}

// HandleError is only reached from the sing accept loop, right before it
// gives up on its socket, since NewConnection never fails.
func (l *Listener) HandleError(err error) {
	select {
	case <-l.done:
		l.logger.Debug(err)
		return
	default:
	}
	l.logger.Warn(err)
	go l.restart(err)
}

func (l *Listener) restart(cause error) {
	delay := restartDelayMin
	for attempt := 0; attempt < l.restartAttempts; attempt++ {
		select {
		case <-l.done:
			return
		case <-time.After(delay):
		}
		err := l.rebind()
		if err == nil {
			l.logger.Info("listener restarted at ", l.Addr())
			return
		}
		l.logger.Warn(err)
		delay *= 2
		if delay > restartDelayMax {
			delay = restartDelayMax
		}
	}
	l.access.Lock()
	bound := l.bound
	l.access.Unlock()
	l.shutdown(E.Cause(cause, "accept on ", bound))
}

func (l *Listener) rebind() error {
	l.access.Lock()
	defer l.access.Unlock()
	select {
	case <-l.done:
		return nil
	default:
	}
	l.inbound.Close()
	inbound := singtcp.NewTCPListener(l.bound, l)
	err := inbound.Start()
	if err != nil {
		return E.Cause(err, "restart listener on ", l.bound)
	}
	l.inbound = inbound
	return nil
}

type trackedConn struct {
	net.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

// ReadFrom keeps the sendfile path of the underlying *net.TCPConn reachable.
func (c *trackedConn) ReadFrom(r io.Reader) (int64, error) {
	if readerFrom, ok := c.Conn.(io.ReaderFrom); ok {
		return readerFrom.ReadFrom(r)
	}
	return io.Copy(c.Conn, r)
}

func (c *trackedConn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
		close(c.closed)
	})
	return err
}
