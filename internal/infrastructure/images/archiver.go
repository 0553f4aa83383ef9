package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// Extension is appended to every stored image id; callers keep the bare id.
const Extension = ".jpg"

const contentType = "image/jpeg"

// ArchiverOptions tunes downloads and transcoding.
type ArchiverOptions struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	MaxWidth  int
	Quality   int
}

// Archiver downloads remote images, re-encodes them as JPEG and hands them to a store.
type Archiver struct {
	client    *http.Client
	store     ports.ImageStore
	userAgent string
	timeout   time.Duration
	maxBytes  int64
	maxWidth  int
	quality   int
	logger    *slog.Logger
}

var _ ports.ImageArchiver = (*Archiver)(nil)

// NewArchiver wires a store with download limits.
func NewArchiver(store ports.ImageStore, opts ArchiverOptions, logger *slog.Logger) *Archiver {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		client:    opts.Client,
		store:     store,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
		maxWidth:  opts.MaxWidth,
		quality:   opts.Quality,
		logger:    logger,
	}
}

// Archive stores one image and returns its id. Any failure is logged and reported as false.
func (a *Archiver) Archive(ctx context.Context, imageURL string) (string, bool) {
	id, err := a.archive(ctx, imageURL)
	if err != nil {
		a.logger.Warn("image not archived", "url", imageURL, "error", err)
		return "", false
	}
	return id, true
}

// ArchiveAll archives images concurrently; one failure never affects the others.
func (a *Archiver) ArchiveAll(ctx context.Context, imageURLs []string) []string {
	type stored struct {
		index int
		id    string
	}

	var (
		mu      sync.Mutex
		results []stored
		wg      sync.WaitGroup
	)
	for i, imageURL := range imageURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok := a.Archive(ctx, imageURL)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, stored{index: i, id: id})
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.id)
	}
	return ids
}

// Discard deletes archived images, logging the ones that could not be removed.
func (a *Archiver) Discard(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := a.store.Delete(ctx, id+Extension); err != nil {
			a.logger.Warn("image not discarded", "id", id, "error", err)
		}
	}
}

func (a *Archiver) archive(ctx context.Context, imageURL string) (string, error) {
	raw, err := a.download(ctx, imageURL)
	if err != nil {
		return "", &domain.ImageArchiveError{URL: imageURL, Err: err}
	}

	encoded, err := a.transcode(raw)
	if err != nil {
		return "", &domain.ImageArchiveError{URL: imageURL, Err: err}
	}

	// Remote names carry query strings and collide across articles; never reuse them.
	id := uuid.NewString()
	if err := a.store.Save(ctx, id+Extension, encoded, contentType); err != nil {
		return "", &domain.ImageArchiveError{URL: imageURL, Err: fmt.Errorf("store: %w", err)}
	}
	return id, nil
}

func (a *Archiver) download(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > a.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", a.maxBytes)
	}
	return raw, nil
}

func (a *Archiver) transcode(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if a.maxWidth > 0 && img.Bounds().Dx() > a.maxWidth {
		img = imaging.Resize(img, a.maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(a.quality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
