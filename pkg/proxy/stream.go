package proxy

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

// copyBufferSize is the read size used when relaying upstream bodies.
const copyBufferSize = 32 * 1024

// streamingContentTypes mark a response as a server-push stream.
var streamingContentTypes = []string{
	"text/event-stream",
	"application/x-ndjson",
	"text/plain",
}

// IsStreaming reports whether a response content type is relayed as a
// stream, flushing after every chunk.
func IsStreaming(contentType string) bool {
	ct := strings.ToLower(contentType)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	for _, s := range streamingContentTypes {
		if strings.Contains(ct, s) {
			return true
		}
	}
	return false
}

// errClientWrite marks a failure writing to the client.
var errClientWrite = errors.New("client write failed")

// relay copies src to w and to c. When flush is set every chunk is flushed
// to the client as soon as it is written. It returns errClientWrite wrapped
// around the write error when the client side fails, and the read error
// when the upstream side fails.
func relay(w http.ResponseWriter, src io.Reader, c *capture, flush bool) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = c.Write(chunk)
			if _, werr := w.Write(chunk); werr != nil {
				return errors.Join(errClientWrite, werr)
			}
			if flush {
				if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
					return errors.Join(errClientWrite, ferr)
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
