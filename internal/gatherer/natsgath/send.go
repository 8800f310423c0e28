package natsgath

import (
	"encoding/json"
)

func (s *natsGatherer) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal message", "error", err)
		return
	}

	if err := s.nc.Publish(s.subject, b); err != nil {
		s.log.Warn("failed to publish message to NATS", "subject", s.subject, "error", err)
	}
}
