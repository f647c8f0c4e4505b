package proxy

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// connectTimeout bounds a single outbound connect attempt. Tuned for fast
// failover, not reachability guarantees.
const connectTimeout = 2 * time.Second

// dialRemote connects to host:port with the local socket bound to the
// given interface's address. A failed attempt marks the interface failed
// and retries on the next interface from the engine, giving up after one
// attempt per configured interface. Returns the connection and the
// interface it was made on.
func dialRemote(ctx context.Context, engine *netiface.Engine, iface *netiface.Interface, host string, port int) (net.Conn, *netiface.Interface, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	attempts := len(engine.Interfaces())

	var lastErr error
	for i := 0; i < attempts; i++ {
		dialer := &net.Dialer{
			Timeout: connectTimeout,
			LocalAddr: &net.TCPAddr{
				IP: net.ParseIP(iface.IP),
			},
		}
		conn, err := dialer.DialContext(ctx, "tcp4", addr)
		if err == nil {
			return conn, iface, nil
		}

		lastErr = err
		logger.Error("Quick connection to %s failed via %s: %v", addr, iface, err)
		engine.MarkFailed(iface, err.Error())

		next, selErr := engine.BestInterface()
		if selErr != nil {
			break
		}
		iface = next
	}

	return nil, nil, NewProxyError(ErrCodeBadGateway, "connect to "+addr+" failed on every interface", lastErr)
}
