package amf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethanbass/amfinder/nnet"
)

// Process exit codes.
const (
	ExitFailure           = 1
	ExitInvalidConfig     = 2
	ExitNoPretrainedModel = 20
	ExitInvalidModel      = 21
	ExitInvalidImage      = 22
)

// ExitError is an error which carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

var (
	ErrNoPretrainedModel = &ExitError{Code: ExitNoPretrainedModel, Message: "a pre-trained model is required in prediction mode"}
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmptyHeader       = fmt.Errorf("%w: no fungal structure labels", ErrInvalidConfig)
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, ErrInvalidConfig):
		return ExitInvalidConfig
	case errors.Is(err, nnet.ErrModelFile):
		return ExitInvalidModel
	}
	return ExitFailure
}

// CheckErr logs the error and exits with the matching code.
func CheckErr(err error) {
	if err != nil {
		slog.Error(err.Error())
		os.Exit(ExitCode(err))
	}
}
