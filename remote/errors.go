package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ConnectionTimeoutError is returned when a host could not be reached within the retry policy.
type ConnectionTimeoutError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("failed to connect to '%s' after %d attempts: %v", e.Host, e.Attempts, e.Err)
}

func (e *ConnectionTimeoutError) Unwrap() error {
	return e.Err
}

// RemoteCommandError is returned when a remote command exits with a non-zero status.
type RemoteCommandError struct {
	Host       string
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *RemoteCommandError) Error() string {
	msg := fmt.Sprintf("command on '%s' exited with status %d", e.Host, e.ExitStatus)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// RemoteIOError is returned by file transfers that cannot proceed on the remote side.
type RemoteIOError struct {
	Host   string
	Path   string
	Reason string
}

func (e *RemoteIOError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.Host, e.Path, e.Reason)
}

// IsRetryable reports whether a dial error is one of the races seen while a node boots:
// the port is not open yet, sshd drops the handshake, or the user's keys are not installed yet.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, io.EOF) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "handshake failed") ||
		strings.Contains(msg, "connection refused")
}
