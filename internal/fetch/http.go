package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
)

const noBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{speed . }}`

func (f *Fetcher) httpDownload(ctx context.Context, req Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http get: unexpected status %s", resp.Status)
	}

	part := req.Dest + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}

	var w io.WriteCloser = out
	if f.progress != nil {
		var bar *pb.ProgressBar
		if resp.ContentLength > 0 {
			bar = pb.Full.New(int(resp.ContentLength))
		} else {
			bar = noBar.New(-1)
		}
		bar.Set(pb.Bytes, true)
		bar.SetWriter(f.progress)
		bar.Set("prefix", filepath.Base(req.Dest))
		bar.Start()
		w = bar.NewProxyWriter(out)
	}

	written, copyErr := io.Copy(w, resp.Body)
	// The proxy writer closes out and finishes the bar.
	closeErr := w.Close()
	if copyErr != nil {
		_ = os.Remove(part)
		return fmt.Errorf("download body: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(part)
		return fmt.Errorf("close %s: %w", part, closeErr)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(part)
		return fmt.Errorf("download truncated: got %d of %d bytes", written, resp.ContentLength)
	}
	if err := os.Rename(part, req.Dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}
