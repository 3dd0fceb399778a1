package engine

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
)

const cacheShards = 64

var cacheHeader = []string{"position", "depth", "best_move", "score", "mate"}

type cacheKey struct {
	pos   string // FEN without the move clocks
	depth int
}

// Cache remembers analyses by position and depth. It is sharded to keep
// lock contention low when several workers share it; each shard evicts its
// oldest entries once full.
type Cache struct {
	shards      [cacheShards]*cacheShard
	maxPerShard int
	hits        atomic.Uint64
	misses      atomic.Uint64
}

type cacheShard struct {
	mu    sync.RWMutex
	cache map[cacheKey]Analysis
	order []cacheKey // FIFO order for eviction
}

// NewCache creates a cache holding roughly maxEntries analyses.
func NewCache(maxEntries int) *Cache {
	maxPerShard := maxEntries / cacheShards
	if maxPerShard < 16 {
		maxPerShard = 16 // minimum per shard
	}
	c := &Cache{maxPerShard: maxPerShard}
	for i := range c.shards {
		c.shards[i] = &cacheShard{cache: make(map[cacheKey]Analysis)}
	}
	return c
}

// positionKey drops the halfmove clock and fullmove number, which do not
// change what the engine sees at a fixed depth.
func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func (c *Cache) shard(k cacheKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(k.pos))
	return c.shards[h.Sum32()%cacheShards]
}

// Get returns the cached analysis of fen at depth.
func (c *Cache) Get(fen string, depth int) (Analysis, bool) {
	k := cacheKey{pos: positionKey(fen), depth: depth}
	s := c.shard(k)

	s.mu.RLock()
	a, ok := s.cache[k]
	s.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return a, ok
}

// Put stores the analysis of fen at depth.
func (c *Cache) Put(fen string, depth int, a Analysis) {
	c.put(cacheKey{pos: positionKey(fen), depth: depth}, a)
}

func (c *Cache) put(k cacheKey, a Analysis) {
	s := c.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[k]; exists {
		s.cache[k] = a
		return
	}
	for len(s.cache) >= c.maxPerShard && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
	s.cache[k] = a
	s.order = append(s.order, k)
}

// Len returns the number of cached analyses.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.cache)
		s.mu.RUnlock()
	}
	return n
}

// Stats returns lookup hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// LoadFile loads analyses saved by SaveFile (.zst compressed when the name
// says so). A missing file loads nothing. Malformed rows are skipped.
func (c *Cache) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var reader io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(reader, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		defer zr.Close()
		reader = zr
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	if _, err := csvReader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache header: %w", err)
	}

	count := 0
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read cache %s: %w", path, err)
		}
		if len(row) != len(cacheHeader) {
			continue
		}
		depth, err1 := strconv.Atoi(row[1])
		score, err2 := strconv.Atoi(row[3])
		mate, err3 := strconv.ParseBool(row[4])
		if err1 != nil || err2 != nil || err3 != nil || row[0] == "" {
			continue
		}
		c.put(cacheKey{pos: row[0], depth: depth}, Analysis{
			BestMove: row[2],
			Score:    ClampScore(score, mate),
			Mate:     mate,
			Depth:    depth,
		})
		count++
	}
	return count, nil
}

// SaveFile writes every cached analysis to path, replacing it atomically.
func (c *Cache) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("save cache: %w", err)
	}

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(bw)
		if err != nil {
			return fail(err)
		}
		w = enc
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cacheHeader); err != nil {
		return fail(err)
	}
	for _, s := range c.shards {
		s.mu.RLock()
		for _, k := range s.order {
			a, ok := s.cache[k]
			if !ok {
				continue
			}
			row := []string{k.pos, strconv.Itoa(k.depth), a.BestMove, strconv.Itoa(a.Score), strconv.FormatBool(a.Mate)}
			if err := cw.Write(row); err != nil {
				s.mu.RUnlock()
				return fail(err)
			}
		}
		s.mu.RUnlock()
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fail(err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fail(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

type cachedAnalyzer struct {
	next  Analyzer
	cache *Cache
}

// WithCache answers repeated positions from cache and stores every
// successful analysis of next in it.
func WithCache(next Analyzer, cache *Cache) Analyzer {
	if cache == nil {
		return next
	}
	return &cachedAnalyzer{next: next, cache: cache}
}

func (c *cachedAnalyzer) Analyze(ctx context.Context, fen string, depth int) (Analysis, error) {
	if a, ok := c.cache.Get(fen, depth); ok {
		return a, nil
	}
	a, err := c.next.Analyze(ctx, fen, depth)
	if err != nil {
		return a, err
	}
	c.cache.Put(fen, depth, a)
	return a, nil
}
