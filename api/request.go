package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JudgeRequest asks a worker to (re)judge a stored submission.
type JudgeRequest struct {
	SubmissionID int64 `json:"submission_id"`
}

var ErrBadRequest = errors.New("malformed judge request")

// DecodeJudgeRequest parses a queue message body.
func DecodeJudgeRequest(body []byte) (JudgeRequest, error) {
	var req JudgeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if req.SubmissionID <= 0 {
		return req, fmt.Errorf("%w: submission id %d", ErrBadRequest, req.SubmissionID)
	}
	return req, nil
}

func (r JudgeRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}
