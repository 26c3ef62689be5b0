package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/skypro1111/udp-peer-service/internal/protocol"
)

type options struct {
	addr     string
	message  string
	count    int
	interval time.Duration
	timeout  time.Duration
}

func parseFlags() options {
	var opts options

	flag.StringVarP(&opts.addr, "addr", "a", "127.0.0.1:8888", "Server address in ip:port format")
	flag.StringVarP(&opts.message, "message", "m", "ping", "Message to send")
	flag.IntVarP(&opts.count, "count", "n", 1, "Number of datagrams to send (0 = until interrupted)")
	flag.DurationVarP(&opts.interval, "interval", "i", time.Second, "Delay between datagrams")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Second, "How long to wait for each reply")
	flag.Parse()

	return opts
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := parseFlags()

	target, err := netip.ParseAddrPort(opts.addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --addr: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(target))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial %s: %v\n", target, err)
		os.Exit(1)
	}
	defer conn.Close()

	sent, received, lost, bytesIn := 0, 0, 0, 0
	buf := make([]byte, 64*1024)
	payload := protocol.Encode(opts.message)

	for seq := 1; opts.count == 0 || seq <= opts.count; seq++ {
		if seq > 1 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		if _, err := conn.Write(payload); err != nil {
			fmt.Fprintf(os.Stderr, "seq=%d send failed: %v\n", seq, err)
			lost++
			continue
		}
		sent++

		_ = conn.SetReadDeadline(time.Now().Add(opts.timeout))
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				fmt.Printf("seq=%d no reply within %s\n", seq, opts.timeout)
			} else {
				fmt.Fprintf(os.Stderr, "seq=%d receive failed: %v\n", seq, err)
			}
			lost++
			continue
		}

		received++
		bytesIn += n
		fmt.Printf("seq=%d reply from %s: %q time=%s\n",
			seq, target, protocol.Decode(buf[:n]), time.Since(start).Round(time.Microsecond))
	}

	fmt.Printf("--- %s ---\n%d sent, %d received, %d lost, %s received\n",
		target, sent, received, lost, humanize.IBytes(uint64(bytesIn)))

	if received == 0 {
		os.Exit(1)
	}
}
