package job

import (
	"commcell/internal/apperrors"
	"commcell/internal/transport"
)

// controlEnvelope covers both shapes the job control endpoints return:
// either a nested errors list or a flat code and message.
type controlEnvelope struct {
	Errors []struct {
		ErrList []struct {
			ErrorCode     int    `json:"errorCode"`
			ErrLogMessage string `json:"errLogMessage"`
		} `json:"errList"`
	} `json:"errors"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// decodeControl parses a control response and returns an error when the
// server rejected the operation. The nested errors list wins over the
// flat fields when both are present.
func decodeControl(op string, resp *transport.Response) error {
	var env controlEnvelope
	if err := resp.JSON(&env); err != nil {
		return apperrors.Malformed(op, err)
	}

	code, message := env.ErrorCode, env.ErrorMessage
	if len(env.Errors) > 0 && len(env.Errors[0].ErrList) > 0 {
		first := env.Errors[0].ErrList[0]
		code, message = first.ErrorCode, first.ErrLogMessage
	}
	if code != 0 {
		return apperrors.Rejected(op, code, message)
	}
	return nil
}
