package translate

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// DefaultChunkSize matches the per-request text limit of the translation APIs.
const DefaultChunkSize = 5000

// Options bounds chunk size, per-chunk timeout and parallel requests (0 = unbounded).
type Options struct {
	ChunkSize   int
	Timeout     time.Duration
	MaxParallel int
}

// Translator splits text into fixed-size chunks, translates them concurrently and
// joins the results in chunk order with a single space.
type Translator struct {
	backend     ports.ChunkTranslator
	chunkSize   int
	timeout     time.Duration
	maxParallel int
}

var _ ports.TextTranslator = (*Translator)(nil)

func New(backend ports.ChunkTranslator, opts Options) *Translator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Translator{
		backend:     backend,
		chunkSize:   opts.ChunkSize,
		timeout:     opts.Timeout,
		maxParallel: opts.MaxParallel,
	}
}

// Translate returns "" for empty text without calling the backend.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	chunks := SplitChunks(text, t.chunkSize)
	if len(chunks) == 0 {
		return "", nil
	}

	translated := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	if t.maxParallel > 0 {
		g.SetLimit(t.maxParallel)
	}
	for i, chunk := range chunks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, t.timeout)
			defer cancel()

			out, err := t.backend.TranslateChunk(cctx, chunk, targetLang)
			if err != nil {
				return &domain.TranslationError{Chunk: i, Err: err}
			}
			translated[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(translated, " "), nil
}

// SplitChunks cuts text into consecutive slices of at most size runes. Boundaries are
// positional and may fall mid-word.
func SplitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := make([]string, 0, (utf8.RuneCountInString(text)+size-1)/size)
	for len(text) > 0 {
		cut, runes := 0, 0
		for cut < len(text) && runes < size {
			_, width := utf8.DecodeRuneInString(text[cut:])
			cut += width
			runes++
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
