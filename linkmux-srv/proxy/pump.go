package proxy

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
)

const (
	// forwardBufferSize is the per-direction copy buffer.
	forwardBufferSize = 32 * 1024
	// forwardIdleTimeout is the per-read idle deadline inside a tunnel.
	forwardIdleTimeout = 10 * time.Second
)

// pump copies bytes from src to dst until EOF, an error, an idle timeout,
// or cancellation via done. Returns the total bytes read. Timeouts and
// peer resets are session events, not interface health signals: they are
// logged and the direction terminates cleanly.
func pump(done <-chan struct{}, dst, src net.Conn, direction, ifaceTag string, idleTimeout time.Duration) int64 {
	buf := make([]byte, forwardBufferSize)
	var total int64

	for {
		select {
		case <-done:
			return total
		default:
		}

		_ = src.SetReadDeadline(time.Now().Add(idleTimeout))
		n, err := src.Read(buf)
		if n > 0 {
			total += int64(n)

			// The sibling pump finished while we were blocked in Read:
			// cancellation forbids further writes.
			select {
			case <-done:
				return total
			default:
			}

			if _, werr := dst.Write(buf[:n]); werr != nil {
				if !isClosedConnError(werr) {
					logger.Error("Error forwarding %s: %v\n"+
						"  Interface: %s\n"+
						"  Bytes transferred: %s",
						direction, werr, ifaceTag, humanize.Bytes(uint64(total)))
				}
				return total
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return total
			case isCancelled(done):
				return total
			case isTimeoutError(err):
				logger.Event(logger.WARN, "TIMEOUT", ifaceTag,
					direction+" after "+humanize.Bytes(uint64(total)))
				return total
			case isResetError(err):
				logger.Event(logger.WARN, "RESET", ifaceTag,
					direction+" after "+humanize.Bytes(uint64(total)))
				return total
			case isClosedConnError(err):
				return total
			default:
				logger.Error("Error forwarding %s: %v\n"+
					"  Interface: %s\n"+
					"  Bytes transferred: %s",
					direction, err, ifaceTag, humanize.Bytes(uint64(total)))
				return total
			}
		}
	}
}

func isCancelled(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isResetError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(err.Error(), "connection reset by peer")
}
