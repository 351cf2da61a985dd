package fetcher

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPTransport lists and downloads over anonymous, passive-mode FTP.
type FTPTransport struct {
	Host    string
	Timeout time.Duration
}

// NewFTPTransport builds an FTPTransport for host ("host:port" or bare
// host, in which case port 21 is assumed).
func NewFTPTransport(host string, timeout time.Duration) *FTPTransport {
	if !strings.Contains(host, ":") {
		host += ":21"
	}
	return &FTPTransport{Host: host, Timeout: timeout}
}

func (t *FTPTransport) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(t.Host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(t.Timeout))
	if err != nil {
		if isRetryableNetErr(err) {
			return nil, err
		}
		return nil, nonRetryable(err)
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (t *FTPTransport) List(ctx context.Context, directory string) ([]DirEntry, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(directory)
	if err != nil {
		if strings.Contains(err.Error(), "550") {
			return nil, FetchNotFound
		}
		return nil, FetchProtocol
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{
			Name:    e.Name,
			ModTime: e.Time,
			IsDir:   e.Type == ftp.EntryTypeFolder,
		})
	}
	return out, nil
}

func (t *FTPTransport) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(path)
	if err != nil {
		conn.Quit()
		if strings.Contains(err.Error(), "550") {
			return nil, FetchNotFound
		}
		return nil, err
	}
	return &ftpReadCloser{resp: resp, conn: conn}, nil
}

// ftpReadCloser closes both the retrieve response and the control
// connection, since jlaffaye/ftp ties one connection to one transfer.
type ftpReadCloser struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReadCloser) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReadCloser) Close() error {
	err := r.resp.Close()
	r.conn.Quit()
	return err
}
