package fetcher

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagen/epgsync/internal/models"
)

// maxBody bounds a downloaded playlist or guide.
var maxBody int64 = 512 << 20

// ErrBodyTooLarge is returned when a response is longer than maxBody.
var ErrBodyTooLarge = errors.New("response body too large")

// FetchM3U fetches the M3U playlist at url and parses it.
func FetchM3U(ctx context.Context, url, userAgent string, timeout time.Duration) ([]models.Channel, error) {
	body, err := get(ctx, url, userAgent, timeout)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseM3U(body)
}

// FetchXMLTV fetches an XMLTV guide, gzip-compressed or not, and returns its
// channel list.
func FetchXMLTV(ctx context.Context, url, userAgent string, timeout time.Duration) ([]models.CatalogEntry, error) {
	body, err := get(ctx, url, userAgent, timeout)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	r, err := maybeGunzip(body)
	if err != nil {
		return nil, err
	}
	return ParseXMLTV(r)
}

func get(ctx context.Context, url, userAgent string, timeout time.Duration) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{&cappedReader{r: resp.Body, left: maxBody}, resp.Body}, nil
}

// cappedReader reads at most left bytes and fails with ErrBodyTooLarge if
// the source has more.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, maxBody)
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip transparently decompresses r when it starts with the gzip
// magic bytes. Servers often send .xml.gz without Content-Encoding.
func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek: %w", err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, nil
}
