// Package fetcher moves report data in and out of the pipeline: it reads
// and writes workbooks and drops finished reports on an FTP server.
package fetcher

import "context"

// Uploader publishes a local file under a remote path relative to its
// configured root.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) error
}
