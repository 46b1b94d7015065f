package main

import (
	"bufio"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// stats is shared by all stream readers.
type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	snapshots   atomic.Int64
	heartbeats  atomic.Int64
}

type summary struct {
	Connected   int64
	ConnectErrs int64
	StreamErrs  int64
	Snapshots   int64
	Heartbeats  int64
}

func (s *stats) summary() summary {
	return summary{
		Connected:   s.connected.Load(),
		ConnectErrs: s.connectErrs.Load(),
		StreamErrs:  s.streamErrs.Load(),
		Snapshots:   s.snapshots.Load(),
		Heartbeats:  s.heartbeats.Load(),
	}
}

func (s summary) perSecond(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(s.Snapshots) / elapsed.Seconds()
}

// consume reads one event stream until it ends. An account event counts
// once it is terminated by a blank line; comment lines count as heartbeats.
func (s *stats) consume(r io.Reader) error {
	reader := bufio.NewReader(r)
	var event string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if event == "account" {
				s.snapshots.Add(1)
			}
			event = ""
		case strings.HasPrefix(line, ":"):
			s.heartbeats.Add(1)
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
}
