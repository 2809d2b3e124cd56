package fileserver

import (
	"context"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzhttp"
	"github.com/sagernet/sing-fileserver/extensions/log"
	"github.com/sagernet/sing-fileserver/extensions/metrics"
	"github.com/sagernet/sing-fileserver/extensions/transport/tcp"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sirupsen/logrus"
)

// Server serves the files below a root directory over HTTP. Every accepted
// connection is served on its own goroutine.
type Server struct {
	config  Config
	root    string
	logger  *logrus.Entry
	metrics *metrics.Metrics
	handler http.Handler

	// appended to the options of the file listener
	listenerOptions []tcp.Option

	access          sync.Mutex
	listener        *tcp.Listener
	metricsListener *tcp.Listener
	httpServer      *http.Server
	metricsServer   *http.Server
	errorLogCloser  io.Closer
	serveErr        chan error
}

// New validates config and resolves the served root. A nil logger logs
// through the standard logrus logger.
func New(config Config, logger *logrus.Entry) (*Server, error) {
	if config.ServerName == "" {
		config.ServerName = DefaultServerName
	}
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	root, err := resolveRoot(config.Root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewLogger("fileserver")
	}
	s := &Server{
		config:  config,
		root:    root,
		logger:  logger,
		metrics: metrics.New(),
	}
	s.handler = newHandler(config, logger, s.metrics, newRootFileSystem(root))
	return s, nil
}

func newHandler(config Config, logger logrus.FieldLogger, m *metrics.Metrics, fsys http.FileSystem) http.Handler {
	var handler http.Handler = errorPages(http.FileServer(fsys))
	if config.Gzip {
		handler = gzhttp.GzipHandler(handler)
	}
	handler = allowReadMethods(handler)
	handler = m.Middleware(handler)
	handler = accessLog(logger, handler)
	return serverHeader(config.ServerName, handler)
}

func (s *Server) Root() string {
	return s.root
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start binds the listeners and begins serving in the background.
func (s *Server) Start() error {
	s.access.Lock()
	defer s.access.Unlock()
	if s.httpServer != nil {
		return E.New("server already started")
	}

	options := append([]tcp.Option{tcp.WithMaxConnections(s.config.MaxConnections)}, s.listenerOptions...)
	listener := tcp.NewListener(s.config.Listen, s.logger, options...)
	err := listener.Start()
	if err != nil {
		return err
	}
	errorLog, errorLogCloser := log.NewStdLogger(s.logger, logrus.WarnLevel)
	s.listener = listener
	s.errorLogCloser = errorLogCloser
	s.serveErr = make(chan error, 2)
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		ErrorLog:          errorLog,
	}
	go s.serve(s.httpServer, listener.NetListener())
	s.logger.Info("serving ", s.root, " at ", listener.Addr())

	if s.config.MetricsListen != "" {
		err = s.startMetrics(errorLog)
		if err != nil {
			s.closeLocked()
			return err
		}
	}
	return nil
}

func (s *Server) startMetrics(errorLog *stdlog.Logger) error {
	bind, err := ParseListen(s.config.MetricsListen)
	if err != nil {
		return err
	}
	listener := tcp.NewListener(bind, s.logger)
	err = listener.Start()
	if err != nil {
		return E.Cause(err, "start metrics listener")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ErrorLog:          errorLog,
	}
	s.metricsListener = listener
	go s.serve(s.metricsServer, listener)
	s.logger.Info("metrics at ", listener.Addr())
	return nil
}

func (s *Server) serve(server *http.Server, listener net.Listener) {
	err := server.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		s.serveErr <- E.Cause(err, "serve")
	}
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.access.Lock()
	defer s.access.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// MetricsAddr returns the bound metrics address, or nil when metrics are not served.
func (s *Server) MetricsAddr() net.Addr {
	s.access.Lock()
	defer s.access.Unlock()
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// URL is the address to browse to, always spelled with localhost.
func (s *Server) URL() string {
	port := int(s.config.Listen.Port())
	if tcpAddr, ok := s.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	return "http://localhost:" + strconv.Itoa(port)
}

// Wait blocks until ctx is done or serving fails, then stops the server.
// In-flight requests get ShutdownTimeout to finish.
func (s *Server) Wait(ctx context.Context) error {
	s.access.Lock()
	serveErr := s.serveErr
	s.access.Unlock()
	if serveErr == nil {
		return E.New("server not started")
	}
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		s.Close()
		return err
	}
	if s.config.ShutdownTimeout <= 0 {
		return s.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Serve is Start followed by Wait.
func (s *Server) Serve(ctx context.Context) error {
	err := s.Start()
	if err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Shutdown stops accepting and waits for in-flight requests until ctx is
// done, after which the remaining connections are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.access.Lock()
	defer s.access.Unlock()
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down")
	err := s.httpServer.Shutdown(ctx)
	if s.metricsServer != nil {
		metricsErr := s.metricsServer.Shutdown(ctx)
		if err == nil {
			err = metricsErr
		}
	}
	if err != nil {
		s.closeLocked()
		return E.Cause(err, "shutdown")
	}
	s.closeLocked()
	return nil
}

// Close drops every connection immediately.
func (s *Server) Close() error {
	s.access.Lock()
	defer s.access.Unlock()
	return s.closeLocked()
}

func (s *Server) closeLocked() error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Close()
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}
	s.listener.Close()
	if s.metricsListener != nil {
		s.metricsListener.Close()
	}
	if s.errorLogCloser != nil {
		s.errorLogCloser.Close()
	}
	// a closed server can be started again
	s.httpServer = nil
	s.metricsServer = nil
	s.listener = nil
	s.metricsListener = nil
	s.errorLogCloser = nil
	if err != nil && !E.IsClosed(err) {
		return E.Cause(err, "close")
	}
	return nil
}
