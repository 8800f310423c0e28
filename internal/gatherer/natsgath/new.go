package natsgath

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/gatherer"
)

// Publisher is the part of *nats.Conn the gatherer needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// New creates a NATS gatherer that streams progress of one attempt to the
// given subject.
func New(nc Publisher, subject string, submissionID int64, attemptID string, logger *slog.Logger) *natsGatherer {
	return &natsGatherer{
		nc:      nc,
		subject: subject,
		header:  api.NewHeader(submissionID, attemptID, ""),
		log:     logger,
	}
}

// Factory streams every attempt to "<prefix>.<submission id>".
func Factory(nc Publisher, prefix string, logger *slog.Logger) gatherer.Factory {
	return func(submissionID int64, attemptID string) gatherer.Gatherer {
		return New(nc, fmt.Sprintf("%s.%d", prefix, submissionID), submissionID, attemptID, logger)
	}
}
