package merge

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/chessdataset/internal/record"
)

// CorpusWriter writes game records, in their original text, into a single
// corpus file with a blank line after each record. The file is staged under
// a temporary name and only appears at its final path on Close.
type CorpusWriter struct {
	path string
	tmp  string
	f    *os.File
	bw   *bufio.Writer
	enc  *zstd.Encoder // nil unless the output ends in .zst
	w    io.Writer

	count int
}

// NewCorpusWriter creates a writer for path. A path ending in .zst produces a
// zstd-compressed corpus.
func NewCorpusWriter(path string) (*CorpusWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp corpus: %w", err)
	}

	cw := &CorpusWriter{
		path: path,
		tmp:  f.Name(),
		f:    f,
		bw:   bufio.NewWriterSize(f, 256*1024),
	}
	cw.w = cw.bw

	if strings.HasSuffix(strings.ToLower(path), ".zst") {
		enc, err := zstd.NewWriter(cw.bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			os.Remove(cw.tmp)
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		cw.enc = enc
		cw.w = enc
	}
	return cw, nil
}

// Write appends one record to the corpus.
func (c *CorpusWriter) Write(g *record.Game) error {
	if _, err := io.WriteString(c.w, g.Raw); err != nil {
		return err
	}
	if _, err := io.WriteString(c.w, "\n\n"); err != nil {
		return err
	}
	c.count++
	return nil
}

// Count returns the number of records written.
func (c *CorpusWriter) Count() int { return c.count }

// Path returns the final corpus path.
func (c *CorpusWriter) Path() string { return c.path }

// Close flushes the corpus and moves it into place.
func (c *CorpusWriter) Close() error {
	if c.f == nil {
		return nil
	}
	if err := c.finish(); err != nil {
		os.Remove(c.tmp)
		return err
	}
	if err := os.Rename(c.tmp, c.path); err != nil {
		os.Remove(c.tmp)
		return fmt.Errorf("rename corpus: %w", err)
	}
	return nil
}

// Abort discards everything written so far.
func (c *CorpusWriter) Abort() {
	if c.f == nil {
		return
	}
	if c.enc != nil {
		c.enc.Close()
	}
	c.f.Close()
	c.f = nil
	os.Remove(c.tmp)
}

func (c *CorpusWriter) finish() error {
	f := c.f
	c.f = nil
	if c.enc != nil {
		if err := c.enc.Close(); err != nil {
			f.Close()
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	if err := c.bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush corpus: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync corpus: %w", err)
	}
	return f.Close()
}
