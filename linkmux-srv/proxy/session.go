package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// Proxy error responses, bit-exact.
const (
	respServiceUnavailable    = "HTTP/1.1 503 Service Unavailable\r\n\r\n"
	respBadGateway            = "HTTP/1.1 502 Bad Gateway\r\n\r\n"
	respConnectionEstablished = "HTTP/1.1 200 Connection established\r\n\r\n"
)

const (
	// headReadTimeout bounds the read of the initial client request.
	headReadTimeout = 5 * time.Second
	// closeWaitTimeout caps the graceful drain before a socket is abandoned.
	closeWaitTimeout = 1 * time.Second
)

// session is one accepted client connection: the parsed request head, the
// outbound connection bound to a chosen interface, and the two forwarding
// pumps. The session exclusively owns both sockets; the interface record is
// shared and only touched through its atomic operations.
type session struct {
	id         string
	srv        *Server
	clientConn net.Conn
	remoteConn net.Conn
	iface      *netiface.Interface
	head       *RequestHead

	start       time.Time
	idleTimeout time.Duration

	statsID     int64
	closeReason string

	bytesClientToRemote int64
	bytesRemoteToClient int64
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		id:          uuid.NewString(),
		srv:         srv,
		clientConn:  conn,
		start:       time.Now(),
		idleTimeout: forwardIdleTimeout,
		closeReason: "normal",
	}
}

// handle runs the session from accept to teardown:
//
//	ACCEPTED -> HEAD_READ -> CONNECTING -> TUNNELING -> TEARDOWN
//
// with 503 on selection failure, 502 when every connect attempt fails, and
// silent close on head-read timeout or parse error.
func (s *session) handle() {
	defer s.teardown()
	ctx := context.Background()

	iface, err := s.srv.engine.BestInterface()
	if err != nil {
		logger.Error("%s Interface selection failed: %v", s.logPrefix(), err)
		s.closeReason = "no_valid_interfaces"
		s.respond(respServiceUnavailable)
		return
	}
	s.adoptInterface(iface)

	logger.Event(logger.INFO, "CONNECTION", iface.Tag(),
		fmt.Sprintf("New client %s", s.clientConn.RemoteAddr()))

	head, err := s.readHead(ctx)
	if err != nil {
		// Malformed or silent client: no response body.
		return
	}
	s.head = head

	protocol := "http"
	if head.IsConnect() {
		protocol = "connect"
	}
	s.statsID, err = s.srv.collector.StartSession(ctx, s.id,
		s.clientConn.RemoteAddr().String(), head.Host, head.Port, protocol)
	if err != nil {
		logger.Error("%s Failed to record session start: %v", s.logPrefix(), err)
	}

	remote, usedIface, err := dialRemote(ctx, s.srv.engine, iface, head.Host, head.Port)
	if err != nil {
		s.recordError(ctx, "connect_failed", err)
		s.closeReason = "bad_gateway"
		s.respond(respBadGateway)
		return
	}
	s.remoteConn = remote
	if usedIface != s.iface {
		s.adoptInterface(usedIface)
	}

	handshakeOK := true
	if head.IsConnect() {
		if !s.respond(respConnectionEstablished) {
			s.closeReason = "client_write_failed"
			handshakeOK = false
		}
	} else {
		// Replay the head verbatim as the first bytes of the outbound
		// stream.
		if _, err := remote.Write(head.Raw); err != nil {
			logger.Error("%s Failed to replay request to %s:%d: %v",
				s.logPrefix(), head.Host, head.Port, err)
			s.recordError(ctx, "replay_failed", err)
			s.closeReason = "replay_failed"
			handshakeOK = false
		}
	}

	if handshakeOK {
		s.tunnel()
	}

	// The remote was established, so the session counts as a success for
	// the interface even when the tunnel itself ended badly.
	elapsed := time.Since(s.start)
	s.iface.UpdateStats(s.bytesClientToRemote+s.bytesRemoteToClient, elapsed)
	s.iface.MarkSuccess()
	s.reportStats(ctx)
}

// readHead reads up to maxHeadBytes of the initial request under the 5 s
// deadline and parses it.
func (s *session) readHead(ctx context.Context) (*RequestHead, error) {
	if err := s.clientConn.SetReadDeadline(time.Now().Add(headReadTimeout)); err != nil {
		logger.Error("%s Failed to set read deadline: %v", s.logPrefix(), err)
	}
	buf := make([]byte, maxHeadBytes)
	n, err := s.clientConn.Read(buf)
	_ = s.clientConn.SetReadDeadline(time.Time{})
	if err != nil {
		if isTimeoutError(err) {
			logger.Error("%s Timeout reading request", s.logPrefix())
			s.closeReason = "head_read_timeout"
			return nil, NewProxyError(ErrCodeHeadReadTimeout, "client sent nothing within deadline", err)
		}
		s.closeReason = "head_read_failed"
		return nil, NewProxyError(ErrCodeHeadReadFailed, "failed to read request head", err)
	}

	head, err := ParseRequestHead(buf[:n])
	if err != nil {
		logger.Error("%s Invalid request: %v", s.logPrefix(), err)
		s.recordError(ctx, "parse_error", err)
		s.closeReason = "parse_error"
		return nil, err
	}
	return head, nil
}

// tunnel runs both forwarding pumps. The first one to finish cancels the
// sibling; both must return before teardown proceeds.
func (s *session) tunnel() {
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			// Wake the sibling out of a blocking read.
			now := time.Now()
			_ = s.clientConn.SetReadDeadline(now)
			_ = s.remoteConn.SetReadDeadline(now)
		})
	}

	tag := s.iface.Tag()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.bytesClientToRemote = pump(done, s.remoteConn, s.clientConn, "client → server", tag, s.idleTimeout)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.bytesRemoteToClient = pump(done, s.clientConn, s.remoteConn, "server → client", tag, s.idleTimeout)
	}()
	wg.Wait()
}

// adoptInterface moves the session's active-connection accounting to
// iface. Failover during connect can hand the session from the initially
// selected interface to another one.
func (s *session) adoptInterface(iface *netiface.Interface) {
	if s.iface != nil {
		s.iface.DecActiveConnections()
	}
	s.iface = iface
	iface.IncActiveConnections()
}

// respond writes a proxy control response to the client.
func (s *session) respond(response string) bool {
	if _, err := s.clientConn.Write([]byte(response)); err != nil {
		if !isClosedConnError(err) {
			logger.Error("%s Failed to write response: %v", s.logPrefix(), err)
		}
		return false
	}
	return true
}

func (s *session) recordError(ctx context.Context, errorType string, err error) {
	if recErr := s.srv.collector.RecordError(ctx, s.statsID, errorType, err.Error()); recErr != nil {
		logger.Error("%s Failed to record error: %v", s.logPrefix(), recErr)
	}
}

// reportStats triggers the periodic interface report and persists any
// emitted snapshots.
func (s *session) reportStats(ctx context.Context) {
	for _, snap := range s.srv.engine.MaybeReportStats() {
		if err := s.srv.collector.RecordInterfaceSnapshot(ctx, snap); err != nil {
			logger.Error("%s Failed to record interface snapshot: %v", s.logPrefix(), err)
		}
	}
}

// teardown releases the session: decrements the interface's active count
// (clamped at zero), gracefully closes both endpoints, and records the
// session end. Best-effort throughout.
func (s *session) teardown() {
	if s.iface != nil {
		s.iface.DecActiveConnections()
	}

	for _, conn := range []net.Conn{s.clientConn, s.remoteConn} {
		if conn != nil {
			closeGraceful(conn)
		}
	}

	if s.statsID > 0 {
		if err := s.srv.collector.EndSession(context.Background(), s.statsID,
			s.bytesClientToRemote, s.bytesRemoteToClient, time.Since(s.start), s.closeReason); err != nil {
			logger.Error("%s Failed to record session end: %v", s.logPrefix(), err)
		}
	}
}

func (s *session) logPrefix() string {
	return "[" + s.id + "]"
}

// closeGraceful half-closes a TCP connection, drains the peer for at most
// closeWaitTimeout, then closes the socket. Errors here are swallowed:
// teardown must not fail a session that already ran.
func closeGraceful(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err == nil {
			_ = tcp.SetReadDeadline(time.Now().Add(closeWaitTimeout))
			buf := make([]byte, 1024)
			for {
				if _, err := tcp.Read(buf); err != nil {
					break
				}
			}
		}
	}
	if err := conn.Close(); err != nil && !isClosedConnError(err) {
		logger.Debug("Error closing connection: %v", err)
	}
}
