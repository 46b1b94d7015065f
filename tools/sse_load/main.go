// Command sse_load opens many concurrent subscriptions to the account
// event stream and reports how many snapshots and heartbeats arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/account/stream", "account stream URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscribers")
	flag.DurationVar(&duration, "dur", time.Minute, "test duration (0 runs until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscriber starts across this window")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500+1) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		},
	}

	logger.Info("starting stream load",
		zap.String("url", targetURL), zap.Int("conns", connections),
		zap.Duration("duration", duration), zap.Duration("ramp", rampUp))

	var (
		st    stats
		wg    sync.WaitGroup
		start = time.Now()
	)

	go report(ctx, logger, &st, start)

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, &st)
		}()
	}

	wg.Wait()

	elapsed := time.Since(start)
	s := st.summary()
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d snapshots=%d heartbeats=%d elapsed=%s snapshots/s=%.2f\n",
		s.Connected, s.ConnectErrs, s.StreamErrs, s.Snapshots, s.Heartbeats,
		elapsed.Truncate(time.Millisecond), s.perSecond(elapsed))
}

func subscribe(ctx context.Context, client *http.Client, url string, st *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		st.connectErrs.Add(1)
		return
	}
	st.connected.Add(1)

	if err := st.consume(resp.Body); err != nil && ctx.Err() == nil {
		st.streamErrs.Add(1)
	}
}

func report(ctx context.Context, logger *zap.Logger, st *stats, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := st.summary()
			logger.Info("status",
				zap.Int64("connected", s.Connected),
				zap.Int64("connect_errs", s.ConnectErrs),
				zap.Int64("stream_errs", s.StreamErrs),
				zap.Int64("snapshots", s.Snapshots),
				zap.Int64("heartbeats", s.Heartbeats),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
