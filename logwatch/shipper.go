package logwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/types"
)

// shipBatch bounds the lines read from the source per publish round.
const shipBatch = 512

// Shipper forwards a node's Source into the JetStream log stream.
//
// It lets watchers on other hosts follow a node's log through NATSSource.
type Shipper struct {
	js      jetstream.JetStream
	src     Source
	node    types.NodeID
	subject string
	logger  types.Logger

	mu     sync.Mutex
	cursor int64
}

// NewShipper creates a shipper that publishes src's lines for node.
//
// Shipping starts at the source's current beginning (offset 0); use
// StartAt to skip history.
func NewShipper(js jetstream.JetStream, cfg StreamConfig, node types.NodeID, src Source, logger types.Logger) *Shipper {
	return &Shipper{
		js:      js,
		src:     src,
		node:    node,
		subject: cfg.Subject(node),
		logger:  logging.OrNop(logger),
	}
}

// StartAt moves the shipping cursor.
func (s *Shipper) StartAt(offset int64) {
	s.mu.Lock()
	s.cursor = offset
	s.mu.Unlock()
}

// Ship publishes every complete line not yet shipped and returns how many were sent.
//
// A line is acknowledged by JetStream before the cursor moves past it, so a
// failed round is retried from the first unacknowledged line.
func (s *Shipper) Ship(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	for {
		lines, next, err := s.src.Lines(ctx, s.cursor, shipBatch)
		if err != nil {
			return sent, err
		}

		for i, line := range lines {
			rec := Record{
				Node:   string(s.node),
				Offset: line.Offset,
				Text:   line.Text,
				Time:   time.Now().UnixNano(),
			}
			data, err := rec.MarshalMsg(nil)
			if err != nil {
				return sent, fmt.Errorf("syncpoint: encode log record: %w", err)
			}
			if _, err := s.js.Publish(ctx, s.subject, data); err != nil {
				return sent, fmt.Errorf("syncpoint: publish log record: %w", err)
			}
			sent++
			if i+1 < len(lines) {
				s.cursor = lines[i+1].Offset
			} else {
				s.cursor = next
			}
		}
		s.cursor = next

		if len(lines) < shipBatch {
			return sent, nil
		}
	}
}

// Run ships on every tick until ctx is done.
func (s *Shipper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Ship(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			s.logger.Warn("log shipping failed", "node", s.node, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
