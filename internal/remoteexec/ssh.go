package remoteexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer opens a connection to a target. The SSH implementation below
// is the production one; tests inject their own.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Conn is one open connection. Exactly one process is started per
// engine call; Close releases the underlying transport.
type Conn interface {
	Start(ctx context.Context, command string) (Process, error)
	Close() error
}

// Process is a started remote command. Output carries the combined
// stdout/stderr stream; Wait blocks until exit and always reports a
// terminal exit code, -1 when the transport lost the real one.
type Process interface {
	Output() io.Reader
	Wait() int
}

type SSHDialer struct {
	Timeout time.Duration
}

func (d SSHDialer) Dial(ctx context.Context, target Target) (Conn, error) {
	signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	cfg := &ssh.ClientConfig{
		User:            target.Username(),
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	// dial through the context so cancellation interrupts the handshake
	netConn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(netConn, target.Addr(), cfg)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return &sshConn{client: ssh.NewClient(clientConn, chans, reqs)}, nil
}

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Start(ctx context.Context, command string) (Process, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	pr, pw := io.Pipe()
	sess.Stdout = pw
	sess.Stderr = pw

	if err := sess.Start(command); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	proc := &sshProcess{sess: sess, out: pr, done: make(chan struct{})}
	go func() {
		defer close(proc.done)
		err := sess.Wait()
		proc.exitCode = exitCodeFrom(err)
		pw.Close()
		sess.Close()
	}()

	// kill the remote process when the caller's context expires; the
	// wait goroutine still delivers a terminal exit code.
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
		case <-proc.done:
		}
	}()

	return proc, nil
}

func (c *sshConn) Close() error {
	return c.client.Close()
}

type sshProcess struct {
	sess     *ssh.Session
	out      *io.PipeReader
	done     chan struct{}
	exitCode int
}

func (p *sshProcess) Output() io.Reader { return p.out }

func (p *sshProcess) Wait() int {
	<-p.done
	return p.exitCode
}

func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	// ExitMissingError or transport loss: still terminal
	return -1
}
