package fetcher

import (
	"context"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP uploader.
type FTPOptions struct {
	Timeout time.Duration
}

// ftpTarget is a parsed ftp:// URL.
type ftpTarget struct {
	host     string
	root     string
	user     string
	password string
}

// FTPUploader stores files under the directory named by an ftp:// URL.
type FTPUploader struct {
	target ftpTarget
	opts   FTPOptions
}

// NewFTPUploader parses rawURL (ftp://[user[:pass]@]host[:port]/root) and
// returns an uploader. Without credentials it logs in anonymously.
func NewFTPUploader(rawURL string, opts FTPOptions) (*FTPUploader, error) {
	target, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPUploader{target: target, opts: opts}, nil
}

// parseFTPURL extracts host (with port), root path and credentials.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" {
		return ftpTarget{}, eris.New("empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, root: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// Upload connects, creates the remote directories and stores localPath at
// root/remotePath.
func (f *FTPUploader) Upload(ctx context.Context, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return eris.Wrap(err, "ftp: open local file")
	}
	defer file.Close() //nolint:errcheck

	dest := path.Join(f.target.root, remotePath)
	zap.L().Debug("ftp: uploading", zap.String("host", f.target.host), zap.String("path", dest))

	conn, err := ftp.Dial(f.target.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(f.target.user, f.target.password); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	// Directories may already exist; STOR reports the real failure.
	dir := ""
	for _, part := range strings.Split(strings.Trim(path.Dir(dest), "/"), "/") {
		if part == "" {
			continue
		}
		dir += "/" + part
		_ = conn.MakeDir(dir)
	}

	if err := conn.Stor(dest, file); err != nil {
		return eris.Wrapf(err, "ftp store %s", dest)
	}
	return nil
}
