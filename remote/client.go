package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alessio/shellescape"
	"golang.org/x/crypto/ssh"
)

// Session is an open remote-shell channel to a single node.
type Session interface {
	// Host returns the address the session is connected to
	Host() string
	// Run executes command and returns its standard output.
	// A non-zero exit status yields a *RemoteCommandError.
	Run(ctx context.Context, command string) (string, error)
	// WriteFile writes content to remotePath, replacing any existing file.
	WriteFile(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error
	// PutFile copies a local file into an existing remote directory.
	PutFile(ctx context.Context, localPath, remoteDir string) error
	Close() error
}

type Client struct {
	host string
	ssh  *ssh.Client
	log  *slog.Logger

	closed atomic.Bool
	done   chan struct{}
}

// Client implements Session
var _ Session = (*Client)(nil)

func newClient(host string, client *ssh.Client, keepAlive time.Duration, log *slog.Logger) *Client {
	c := &Client{
		host: host,
		ssh:  client,
		log:  log,
		done: make(chan struct{}),
	}

	// Keep the connection up during long installs behind NAT gateways
	if keepAlive > 0 {
		go func() {
			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()
			for {
				select {
				case <-c.done:
					return
				case <-ticker.C:
					if _, _, err := c.ssh.SendRequest("keepalive@flotilla", true, nil); err != nil {
						c.log.Warn("SSH keepalive failed", "error", err)
						return
					}
				}
			}
		}()
	}

	return c
}

func (c *Client) Host() string {
	return c.host
}

func (c *Client) Run(ctx context.Context, command string) (string, error) {
	return c.run(ctx, command, nil)
}

func (c *Client) run(ctx context.Context, command string, stdin io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	session, err := c.ssh.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on '%s': %w", c.host, err)
	}
	defer session.Close()

	// Run only returns once both streams are drained, so the exit status is read last
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	session.Stdin = stdin

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// The remote process is left to finish on its own
		return "", fmt.Errorf("abandoned command on '%s': %w", c.host, ctx.Err())
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &RemoteCommandError{
				Host:       c.host,
				Command:    command,
				ExitStatus: exitErr.ExitStatus(),
				Stderr:     stderr.String(),
			}
		}
		return stdout.String(), fmt.Errorf("failed to run command on '%s': %w", c.host, err)
	}

	return stdout.String(), nil
}

func (c *Client) WriteFile(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	return c.write(ctx, bytes.NewReader(content), remotePath, mode)
}

func (c *Client) write(ctx context.Context, r io.Reader, remotePath string, mode os.FileMode) error {
	quoted := shellescape.Quote(remotePath)
	command := fmt.Sprintf("cat > %s && chmod %04o %s", quoted, mode.Perm(), quoted)
	if _, err := c.run(ctx, command, r); err != nil {
		return fmt.Errorf("failed to write '%s': %w", remotePath, err)
	}
	return nil
}

func (c *Client) PutFile(ctx context.Context, localPath, remoteDir string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", localPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("'%s' is not a regular file", localPath)
	}

	if _, err := c.Run(ctx, "test -d "+shellescape.Quote(remoteDir)); err != nil {
		var cmdErr *RemoteCommandError
		if errors.As(err, &cmdErr) {
			return &RemoteIOError{Host: c.host, Path: remoteDir, Reason: "directory does not exist"}
		}
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", localPath, err)
	}
	defer f.Close()

	return c.write(ctx, f, path.Join(remoteDir, filepath.Base(localPath)), info.Mode())
}

func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	return c.ssh.Close()
}
