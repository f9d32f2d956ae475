package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path"
	"strconv"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Uploader writes export files to a tenant's remote server
type Uploader interface {
	Upload(ctx context.Context, settings *types.SFTPSettings, reportDate string, files []Attachment) error
}

// SFTPUploader uploads over SSH with pkg/sftp
type SFTPUploader struct {
	logger zerolog.Logger
}

// NewSFTPUploader returns an uploader
func NewSFTPUploader() *SFTPUploader {
	return &SFTPUploader{logger: log.WithComponent("delivery")}
}

// clientConfig builds the SSH client configuration of settings
func (u *SFTPUploader) clientConfig(settings *types.SFTPSettings) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if settings.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(settings.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("invalid sftp private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if settings.Password != "" {
		auth = append(auth, ssh.Password(settings.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp requires a password or private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if settings.HostKey != "" {
		pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(settings.HostKey))
		if err != nil {
			return nil, fmt.Errorf("invalid sftp host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pk)
	} else {
		u.logger.Warn().Str("host", settings.Host).Msg("No SFTP host key configured, host identity is not verified")
	}

	return &ssh.ClientConfig{
		User:            settings.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func remoteDir(settings *types.SFTPSettings, reportDate string) string {
	base := settings.RemotePath
	if base == "" {
		base = "."
	}
	return path.Join(base, reportDate)
}

// Upload implements Uploader. The connection is closed when ctx ends so
// a stalled transfer cannot outlive the attempt timeout.
func (u *SFTPUploader) Upload(ctx context.Context, settings *types.SFTPSettings, reportDate string, files []Attachment) error {
	config, err := u.clientConfig(settings)
	if err != nil {
		return err
	}

	port := settings.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("failed to start sftp session: %w", err)
	}
	defer client.Close()

	dir := remoteDir(settings, reportDate)
	if err := client.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
	}

	for _, f := range files {
		target := path.Join(dir, f.FileName)
		if err := writeRemote(client, target, f.Data); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func writeRemote(client *sftp.Client, target string, data []byte) error {
	f, err := client.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := f.ReadFrom(bytes.NewReader(data)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	return nil
}
