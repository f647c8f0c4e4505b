package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/linkmux/linkmux/linkmux-srv/config"
	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
	"github.com/linkmux/linkmux/linkmux-srv/proxy"
	"github.com/linkmux/linkmux/linkmux-srv/stats"
)

var (
	numRequests = flag.Int("numRequests", 100, "Total number of requests to send")
	concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
	testTimeout = flag.Duration("timeout", 30*time.Second, "Overall test timeout")
	dataSize    = flag.Int("dataSize", 1024*1024, "Size of payload in bytes per request")
)

type result struct {
	bytes int64
	err   error
}

const connectionEstablished = "HTTP/1.1 200 Connection established\r\n\r\n"

// serveData writes the payload to every accepted connection and closes it.
func serveData(ln net.Listener, buf []byte) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			_, _ = c.Write(buf)
			_ = c.Close()
		}(conn)
	}
}

// tunnelRequest opens a CONNECT tunnel through the proxy and reads the
// origin's payload to EOF.
func tunnelRequest(proxyAddr, originAddr string, wg *sync.WaitGroup, results chan<- result) {
	defer wg.Done()

	conn, err := net.DialTimeout("tcp", proxyAddr, 5*time.Second)
	if err != nil {
		results <- result{0, fmt.Errorf("dial proxy: %w", err)}
		return
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(*testTimeout))

	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\n\r\n", originAddr); err != nil {
		results <- result{0, fmt.Errorf("write CONNECT: %w", err)}
		return
	}

	resp := make([]byte, len(connectionEstablished))
	if _, err := io.ReadFull(conn, resp); err != nil {
		results <- result{0, fmt.Errorf("read CONNECT response: %w", err)}
		return
	}
	if string(resp) != connectionEstablished {
		results <- result{0, fmt.Errorf("unexpected CONNECT response: %q", resp)}
		return
	}

	bytesRead, err := io.Copy(io.Discard, conn)
	if err != nil {
		results <- result{bytesRead, fmt.Errorf("read payload: %w", err)}
		return
	}
	if bytesRead != int64(*dataSize) {
		results <- result{bytesRead, fmt.Errorf("short payload: %d of %d bytes", bytesRead, *dataSize)}
		return
	}

	results <- result{bytesRead, nil}
}

func main() {
	flag.Parse()

	logger.SetLevel(logger.ERROR)

	// Setup test data
	buf := make([]byte, *dataSize)
	for i := range buf {
		buf[i] = 'a'
	}

	// Start data server
	originLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start origin:", err)
		os.Exit(1)
	}
	go serveData(originLn, buf)

	// Start proxy over a duplicated loopback interface
	engine, err := netiface.NewEngine([]*netiface.Interface{
		netiface.NewInterface("lo-test", "127.0.0.1"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build engine:", err)
		os.Exit(1)
	}
	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start proxy listener:", err)
		os.Exit(1)
	}
	cfg := &config.Config{
		Listen:                   config.ListenConfig{Host: "127.0.0.1", Port: 8080},
		MaxConcurrentConnections: *concurrency * 2,
	}
	p := proxy.NewServer(cfg, engine, stats.NewMemoryCollector())
	go func() {
		if err := p.StartWithListener(proxyLn); err != nil {
			fmt.Fprintln(os.Stderr, "proxy server error:", err)
		}
	}()

	proxyAddr := proxyLn.Addr().String()
	originAddr := originLn.Addr().String()

	// Run test
	var wg sync.WaitGroup
	results := make(chan result, *numRequests)
	sem := make(chan struct{}, *concurrency)
	start := time.Now()
	for i := 0; i < *numRequests; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			tunnelRequest(proxyAddr, originAddr, &wg, results)
		}()
	}
	wg.Wait()
	close(results)

	// Collect results
	success, errors, total := 0, 0, int64(0)
	for res := range results {
		if res.err != nil {
			errors++
		} else {
			success++
			total += res.bytes
		}
	}
	dur := time.Since(start)
	rps := float64(success) / dur.Seconds()
	mbps := float64(total) / dur.Seconds() / 1024 / 1024

	// Output
	fmt.Printf("Duration: %.2f s, Success: %d, Errors: %d\n", dur.Seconds(), success, errors)
	fmt.Printf("RPS: %.2f, Throughput: %.2f MB/s\n", rps, mbps)

	_ = p.Stop()
	_ = originLn.Close()

	if errors > 0 {
		fmt.Fprintln(os.Stderr, "Test failed: errors encountered")
		os.Exit(1)
	}
}
