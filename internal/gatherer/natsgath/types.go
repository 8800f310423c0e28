package natsgath

import (
	"log/slog"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/gatherer"
)

type natsGatherer struct {
	nc      Publisher
	subject string
	header  api.Header
	log     *slog.Logger
}

var _ gatherer.Gatherer = (*natsGatherer)(nil)

func (s *natsGatherer) StartJob(systemInfo string) {
	s.send(api.NewStartJob(s.header, systemInfo))
}

func (s *natsGatherer) StartCompile() {
	s.send(api.NewStartCompile(s.header))
}

func (s *natsGatherer) FinishCompile(data *api.RuntimeData) {
	s.send(api.NewFinishCompile(s.header, data))
}

func (s *natsGatherer) ReachTest(testID int64, position int) {
	s.send(api.NewReachTest(s.header, testID, position))
}

func (s *natsGatherer) FinishTest(res api.TestResult) {
	s.send(api.NewFinishTest(s.header, res))
}

func (s *natsGatherer) CompileError(msg string) {
	s.send(api.NewFinishJob(s.header, nil, &msg, true, false))
}

func (s *natsGatherer) InternalError(msg string) {
	s.send(api.NewFinishJob(s.header, nil, &msg, false, true))
}

func (s *natsGatherer) FinishJob(summary api.Summary) {
	s.send(api.NewFinishJob(s.header, &summary, nil, false, false))
}
