package sink

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPSink stores songs on an FTP server, one connection per upload
type FTPSink struct {
	addr     string
	username string
	password string
	dir      string
	timeout  time.Duration
}

// NewFTPSink creates a sink for host:port. An empty username logs in
// anonymously and port 0 means 21.
func NewFTPSink(host string, port int, username, password, dir string, timeout time.Duration) *FTPSink {
	if port == 0 {
		port = 21
	}
	if username == "" {
		username = "anonymous"
		if password == "" {
			password = "anonymous"
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FTPSink{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		username: username,
		password: password,
		dir:      dir,
		timeout:  timeout,
	}
}

// Kind implements Sink
func (s *FTPSink) Kind() string { return SinkKindFTP }

// Upload implements Sink
func (s *FTPSink) Upload(ctx context.Context, filename string, content io.Reader) error {
	conn, err := ftp.Dial(s.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.timeout),
	)
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", s.addr, err)
	}
	defer conn.Quit()

	// The control connection does not watch ctx after dialing.
	stop := context.AfterFunc(ctx, func() { conn.Quit() })
	defer stop()

	if err := conn.Login(s.username, s.password); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	if s.dir != "" {
		if err := s.ensureDir(conn); err != nil {
			return err
		}
	}

	if err := conn.Stor(filename, content); err != nil {
		return fmt.Errorf("ftp stor %s: %w", path.Join(s.dir, filename), err)
	}
	return nil
}

func (s *FTPSink) ensureDir(conn *ftp.ServerConn) error {
	if err := conn.ChangeDir(s.dir); err == nil {
		return nil
	}
	if err := conn.MakeDir(s.dir); err != nil {
		return fmt.Errorf("ftp mkdir %s: %w", s.dir, err)
	}
	if err := conn.ChangeDir(s.dir); err != nil {
		return fmt.Errorf("ftp cwd %s: %w", s.dir, err)
	}
	return nil
}
