package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer opens SSH sessions to cluster nodes, waiting out the window during which a
// freshly booted node does not accept connections yet.
type Dialer struct {
	User   string
	Port   int
	Signer ssh.Signer
	Policy RetryPolicy
	// Timeout of a single connection attempt
	Timeout time.Duration
	// KeepAlive interval, zero disables keep-alive requests
	KeepAlive time.Duration
	Logger    *slog.Logger
}

func (d *Dialer) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:    d.User,
		Timeout: d.Timeout,
		// Nodes are created by the same operation that connects to them, there is no known host key yet
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(d.Signer),
		},
	}
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Dial connects to host, retrying transient failures according to the dialer's policy.
func (d *Dialer) Dial(ctx context.Context, host string) (Session, error) {
	if host == "" {
		return nil, fmt.Errorf("cannot connect to a node without an address")
	}

	port := d.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	config := d.clientConfig()
	log := d.logger().With("host", host)

	client, attempts, err := RetryResult(ctx, d.Policy, IsRetryable, func() (*ssh.Client, error) {
		client, err := d.dialOnce(ctx, addr, config)
		if err != nil && IsRetryable(err) {
			log.Debug("Connection to node refused, retrying", "retry-in", d.Policy.Interval, "error", err)
		}
		return client, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("interrupted while connecting to '%s': %w", host, err)
		}
		if IsRetryable(err) {
			return nil, &ConnectionTimeoutError{Host: host, Attempts: attempts, Err: err}
		}
		return nil, fmt.Errorf("failed to connect to '%s': %w", host, err)
	}

	log.Debug("Connected to node", "attempts", attempts)
	return newClient(host, client, d.KeepAlive, log), nil
}

func (d *Dialer) dialOnce(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if d.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}
