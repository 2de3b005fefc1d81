package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the input was rejected
	ExitCommandError = 2 // the command could not run (config, network, file system)
)

// Error codes reported in JSON output
const (
	ErrCodeInvalidURI  = "INVALID_PAYMENT_REQUEST"
	ErrCodeInvalidNote = "INVALID_NOTE"
	ErrCodeInvalidArgs = "INVALID_ARGUMENT"
	ErrCodeLedger      = "LEDGER_ERROR"
	ErrCodeIO          = "IO_ERROR"
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error, ExitFailure by default
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Response is the JSON envelope of every command
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed command in JSON output
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success writes data. In text mode text renders it.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.Format == FormatJSON {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail writes the error and returns an ExitError with exitCode
func (f *OutputFormatter) Fail(exitCode int, code, message string, details interface{}) error {
	if f.Format == FormatJSON {
		if err := json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
		if f.Verbose && details != nil {
			fmt.Fprintf(f.errWriter(), "Details: %v\n", details)
		}
	}
	return &ExitError{Code: exitCode, Message: message}
}

// VerboseLog writes a diagnostic line when --verbose is set. It never
// writes to the result stream so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
