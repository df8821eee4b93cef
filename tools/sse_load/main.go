// Command sse_load opens many concurrent subscriptions to the walletd event
// streams and reports how many events of each kind arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64

	mu     sync.Mutex
	events map[string]int64
}

func (c *counters) event(name string) {
	c.mu.Lock()
	c.events[name]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.events))
	for k, v := range c.events {
		out[k] = v
	}
	return out
}

func main() {
	var (
		baseURL     string
		streams     string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "walletd base URL")
	flag.StringVar(&streams, "streams", "/balances/stream,/submissions/stream,/status/stream", "comma separated stream paths")
	flag.IntVar(&connections, "conns", 200, "connections per stream")
	flag.DurationVar(&duration, "dur", 30*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", time.Second, "spread connection starts across this window")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	paths := strings.Split(streams, ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	total := connections * len(paths)
	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     total + 10,
		MaxIdleConnsPerHost: total + 10,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}}

	c := &counters{events: make(map[string]int64)}
	interval := rampUp / time.Duration(total)
	start := time.Now()

	logger.Info("starting stream load", zap.String("url", baseURL), zap.Strings("streams", paths), zap.Int("conns", total))

	go report(ctx, logger, c, start)

	g := new(errgroup.Group)
	for i := 0; i < total; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		target := strings.TrimRight(baseURL, "/") + strings.TrimSpace(paths[i%len(paths)])
		g.Go(func() error {
			subscribe(ctx, client, target, c)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	var sum int64
	for _, v := range c.snapshot() {
		sum += v
	}
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%v elapsed=%s events/s=%.2f\n",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.snapshot(),
		elapsed.Truncate(time.Millisecond), float64(sum)/elapsed.Seconds())
}

func subscribe(ctx context.Context, client *http.Client, target string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}
		// heartbeats are comments and not counted
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			c.event(strings.TrimSpace(name))
		}
	}
}

func report(ctx context.Context, logger *zap.Logger, c *counters, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("status",
				zap.Int64("connected", c.connected.Load()),
				zap.Int64("connect_errs", c.connectErrs.Load()),
				zap.Int64("stream_errs", c.streamErrs.Load()),
				zap.Any("events", c.snapshot()),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
