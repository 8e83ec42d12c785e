package logwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/syncpoint/types"
)

// StreamConfig configures the JetStream stream that carries shipped log lines.
type StreamConfig struct {
	// StreamName is the JetStream stream name.
	// Default: "SYNCPOINT_LOGS"
	StreamName string

	// SubjectPrefix is the subject prefix. Lines of a node are published to
	// "{SubjectPrefix}.{node}" with the node address made subject-safe.
	// Default: "syncpoint.logs"
	SubjectPrefix string

	// MaxAge is the maximum age of lines kept in the stream.
	// Default: 24 hours
	MaxAge time.Duration

	// Replicas is the number of stream replicas.
	// Default: 1
	Replicas int
}

// DefaultStreamConfig returns the default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		StreamName:    "SYNCPOINT_LOGS",
		SubjectPrefix: "syncpoint.logs",
		MaxAge:        24 * time.Hour,
		Replicas:      1,
	}
}

// Subject returns the subject a node's lines are published on.
func (c StreamConfig) Subject(node types.NodeID) string {
	return c.SubjectPrefix + "." + subjectToken(string(node))
}

// subjectToken makes s usable as a single NATS subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ':', ' ', '*', '>', '\t':
			return '_'
		}

		return r
	}, s)
}

// EnsureStream creates or updates the log stream.
//
// Parameters:
//   - ctx: Context for cancellation
//   - js: A JetStream context (created via jetstream.New(conn))
//   - cfg: Stream configuration
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Error if stream creation fails
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	if js == nil {
		return nil, errors.New("syncpoint: JetStream context is nil")
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "syncpoint node diagnostic streams",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Replicas:    cfg.Replicas,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("syncpoint: failed to create/update stream: %w", err)
	}

	return stream, nil
}

// NATSSource reads one node's lines from a JetStream stream.
//
// Offsets are stream sequence numbers. Because the stream is shared by every
// node, a mark taken here is a global sequence and the lines returned for it
// are filtered by the node's subject.
//
// When the lines are shipped in-process, attach the shipper with WithShipper
// so that a mark first flushes what the node has already written.
type NATSSource struct {
	stream  jetstream.Stream
	subject string
	shipper *Shipper
}

var (
	_ Source = (*NATSSource)(nil)
	_ Syncer = (*NATSSource)(nil)
)

// NewNATSSource creates a Source over the node's subject in stream.
//
// Parameters:
//   - stream: The log stream (see EnsureStream)
//   - cfg: Stream configuration used to derive the node subject
//   - node: Node whose lines to read
//
// Returns:
//   - *NATSSource: The source
func NewNATSSource(stream jetstream.Stream, cfg StreamConfig, node types.NodeID) *NATSSource {
	return &NATSSource{stream: stream, subject: cfg.Subject(node)}
}

// WithShipper attaches the shipper feeding this source's subject.
func (n *NATSSource) WithShipper(s *Shipper) *NATSSource {
	n.shipper = s
	return n
}

// Sync ships every pending line of the attached shipper. Without a shipper
// the stream is fed elsewhere and Sync does nothing.
func (n *NATSSource) Sync(ctx context.Context) error {
	if n.shipper == nil {
		return nil
	}
	_, err := n.shipper.Ship(ctx)

	return err
}

// Subject returns the subject the source reads.
func (n *NATSSource) Subject() string {
	return n.subject
}

// End returns the stream's next sequence number.
func (n *NATSSource) End(ctx context.Context) (int64, error) {
	info, err := n.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncpoint: stream info: %w", err)
	}

	return int64(info.State.LastSeq) + 1, nil
}

// Lines returns the node's lines with sequence at or after from.
func (n *NATSSource) Lines(ctx context.Context, from int64, limit int) ([]types.Line, int64, error) {
	if from < 1 {
		from = 1
	}

	var lines []types.Line
	seq := uint64(from)
	for limit <= 0 || len(lines) < limit {
		msg, err := n.stream.GetMsg(ctx, seq, jetstream.WithGetMsgSubject(n.subject))
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			break
		}
		if err != nil {
			return nil, from, fmt.Errorf("syncpoint: get message %d: %w", seq, err)
		}

		var rec Record
		if _, err := rec.UnmarshalMsg(msg.Data); err != nil {
			return nil, from, fmt.Errorf("syncpoint: decode log record %d: %w", msg.Sequence, err)
		}
		lines = append(lines, types.Line{Offset: int64(msg.Sequence), Text: rec.Text})
		seq = msg.Sequence + 1
	}

	return lines, int64(seq), nil
}
