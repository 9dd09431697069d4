package aggregator

import "errors"

var (
	ErrIncompleteRound = errors.New("round is missing contributions")
	ErrLambdaMismatch  = errors.New("sites report different lambda values")
	ErrRunFailed       = errors.New("run failed")
	ErrResultNotReady  = errors.New("run has not completed")
)
