package delivery

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	sftpUser     = "sftp_aucfile"
	sftpPassword = "s3cret"
)

type sftpServer struct {
	addr    string
	hostKey ssh.PublicKey
}

// startSFTPServer runs an in-memory SFTP server on a loopback port.
func startSFTPServer(t *testing.T) sftpServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == sftpUser && string(pass) == sftpPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	handlers := sftp.InMemHandler()
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSFTP(nc, cfg, handlers)
		}
	}()

	return sftpServer{addr: ln.Addr().String(), hostKey: signer.PublicKey()}
}

func serveSFTP(nc net.Conn, cfg *ssh.ServerConfig, handlers sftp.Handlers) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)
		server := sftp.NewRequestServer(ch, handlers)
		go func() {
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}

func (s sftpServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	p, err := net.LookupPort("tcp", port)
	require.NoError(t, err)
	return host, p
}

func (s sftpServer) read(t *testing.T, remote string) []byte {
	t.Helper()
	client, err := ssh.Dial("tcp", s.addr, &ssh.ClientConfig{
		User:            sftpUser,
		Auth:            []ssh.AuthMethod{ssh.Password(sftpPassword)},
		HostKeyCallback: ssh.FixedHostKey(s.hostKey),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()
	sc, err := sftp.NewClient(client)
	require.NoError(t, err)
	defer sc.Close()
	f, err := sc.Open(remote)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	return body
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSFTP_DeliverWritesToInbox(t *testing.T) {
	srv := startSFTPServer(t)
	host, port := srv.hostPort(t)

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{srv.addr}, srv.hostKey)
	require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

	ch, err := NewSFTP(SFTPConfig{
		Host:           host,
		Port:           port,
		User:           sftpUser,
		Password:       sftpPassword,
		InboxDir:       "/",
		KnownHostsFile: knownHosts,
		Timeout:        5 * time.Second,
	}, fixedNamer(sftpUser), discardLogger())
	require.NoError(t, err)

	payload := []byte("<spml:batchRequest/>")
	name, err := ch.Deliver(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "aucsftp_aucfile07032024_090503.SPML", name)
	assert.Equal(t, payload, srv.read(t, "/"+name))
}

func TestSFTP_WrongPasswordIsDeliveryError(t *testing.T) {
	srv := startSFTPServer(t)
	host, port := srv.hostPort(t)

	ch, err := NewSFTP(SFTPConfig{
		Host:     host,
		Port:     port,
		User:     sftpUser,
		Password: "wrong",
		InboxDir: "/",
		Timeout:  5 * time.Second,
	}, fixedNamer(sftpUser), discardLogger())
	require.NoError(t, err)

	_, err = ch.Deliver(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSFTP_UnknownHostKeyIsRejected(t *testing.T) {
	srv := startSFTPServer(t)
	host, port := srv.hostPort(t)

	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherKey, err := ssh.NewPublicKey(other)
	require.NoError(t, err)

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{srv.addr}, otherKey)
	require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

	ch, err := NewSFTP(SFTPConfig{
		Host:           host,
		Port:           port,
		User:           sftpUser,
		Password:       sftpPassword,
		InboxDir:       "/",
		KnownHostsFile: knownHosts,
		Timeout:        5 * time.Second,
	}, fixedNamer(sftpUser), discardLogger())
	require.NoError(t, err)

	_, err = ch.Deliver(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "ssh handshake")
}

func TestSFTP_UnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	ch, err := NewSFTP(SFTPConfig{Host: "127.0.0.1", Port: addr.Port, User: sftpUser, Timeout: time.Second}, fixedNamer(sftpUser), discardLogger())
	require.NoError(t, err)

	_, err = ch.Deliver(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestNewSFTP_RequiresHostAndUser(t *testing.T) {
	_, err := NewSFTP(SFTPConfig{User: "u"}, Namer{}, discardLogger())
	assert.Error(t, err)
}
