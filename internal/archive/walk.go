package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// entry is one archive member. open is only valid during the walk callback.
type entry struct {
	name    string
	mode    fs.FileMode
	dir     bool
	regular bool
	open    func() (io.ReadCloser, error)
}

func walk(ctx context.Context, path string, format Format, fn func(entry) error) error {
	switch format {
	case FormatZip:
		return walkZip(ctx, path, fn)
	case Format7z:
		return walk7z(ctx, path, fn)
	case FormatTar:
		return walkTar(ctx, path, false, fn)
	case FormatTarGz:
		return walkTar(ctx, path, true, fn)
	default:
		return errors.New("unsupported archive format")
	}
}

func walkZip(ctx context.Context, path string, fn func(entry) error) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := f.Mode()
		e := entry{
			name:    f.Name,
			mode:    mode,
			dir:     mode.IsDir(),
			regular: mode.IsRegular(),
		}
		e.open = func() (io.ReadCloser, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			return &ctxReader{ctx: ctx, r: rc}, nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func walk7z(ctx context.Context, path string, fn func(entry) error) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := f.Mode()
		e := entry{
			name:    f.Name,
			mode:    mode,
			dir:     mode.IsDir(),
			regular: mode.IsRegular(),
		}
		e.open = func() (io.ReadCloser, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			return &ctxReader{ctx: ctx, r: rc}, nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func walkTar(ctx context.Context, path string, gzipped bool, fn func(entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		e := entry{
			name:    hdr.Name,
			mode:    fs.FileMode(hdr.Mode).Perm(),
			dir:     hdr.Typeflag == tar.TypeDir,
			regular: hdr.Typeflag == tar.TypeReg,
		}
		e.open = func() (io.ReadCloser, error) {
			return &ctxReader{ctx: ctx, r: tr}, nil
		}
		if err := fn(e); err != nil {
			return err
		}
		// Drain unread bodies so the gzip trailer is reached and checked.
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return err
		}
	}
	if gzipped {
		_, err := io.Copy(io.Discard, src)
		return err
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}
	return r.r.Read(p)
}

func (r *ctxReader) Close() error {
	if closer, ok := r.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
