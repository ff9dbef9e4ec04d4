package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig holds the remote inbox parameters.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	InboxDir string
	// KnownHostsFile pins the server key. When empty the host key is not
	// verified and a warning is logged at construction.
	KnownHostsFile string
	Timeout        time.Duration
}

// SFTP delivers batches over SSH file transfer, one connection per batch.
type SFTP struct {
	cfg    SFTPConfig
	namer  Namer
	hostCB ssh.HostKeyCallback
	logger *slog.Logger
}

// NewSFTP validates cfg and prepares host key verification.
func NewSFTP(cfg SFTPConfig, namer Namer, logger *slog.Logger) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, errors.New("sftp host and user are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.InboxDir == "" {
		cfg.InboxDir = "."
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	var cb ssh.HostKeyCallback
	if cfg.KnownHostsFile != "" {
		k, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		cb = k
	} else {
		logger.Warn("sftp host key verification disabled", "host", cfg.Host)
		cb = ssh.InsecureIgnoreHostKey()
	}
	return &SFTP{cfg: cfg, namer: namer, hostCB: cb, logger: logger}, nil
}

// Deliver implements Channel.
func (c *SFTP) Deliver(ctx context.Context, payload []byte) (string, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", deliveryError("dial", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		HostKeyCallback: c.hostCB,
		Timeout:         c.cfg.Timeout,
	})
	if err != nil {
		_ = conn.Close()
		return "", deliveryError("ssh handshake", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return "", deliveryError("open sftp", err)
	}
	defer sc.Close()

	name := c.namer.Name()
	remote := path.Join(c.cfg.InboxDir, name)
	f, err := sc.Create(remote)
	if err != nil {
		return "", deliveryError("create "+remote, err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return "", deliveryError("write "+remote, err)
	}
	if err := f.Close(); err != nil {
		return "", deliveryError("close "+remote, err)
	}

	c.logger.InfoContext(ctx, "batch delivered",
		"channel", "sftp",
		"filename", name,
		"bytes", len(payload),
	)
	return name, nil
}
