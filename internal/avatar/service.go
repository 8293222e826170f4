// Package avatar imports account avatars from remote URLs. Import is a
// best-effort post-commit enrichment: every sub-step failure yields a
// non-fatal false result rather than an error escalation.
package avatar

import (
	"context"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	_ "image/gif"  // register gif
	_ "image/jpeg" // register jpeg
	_ "image/png"  // register png

	"golang.org/x/image/draw"

	"gatehouse/pkg/domain"
)

// Store persists a processed avatar image for a user.
type Store interface {
	Save(ctx context.Context, userID domain.UserID, img image.Image) error
}

// Service fetches, decodes, resizes, and stores avatars.
type Service struct {
	http         *http.Client
	store        Store
	maxBytes     int64
	targetPixels int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.http = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimits overrides the download size cap and output dimensions.
func WithLimits(maxBytes int64, targetPixels int) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
		if targetPixels > 0 {
			s.targetPixels = targetPixels
		}
	}
}

// New builds an avatar service writing into the given store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		http:         &http.Client{Timeout: 10 * time.Second},
		store:        store,
		maxBytes:     4 << 20,
		targetPixels: 192,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportFromURL fetches the image at rawURL into a temporary scoped file,
// decodes and resizes it, and stores it for the user. Returns false on any
// failure; the caller treats that as a cosmetic gap.
func (s *Service) ImportFromURL(ctx context.Context, userID domain.UserID, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		s.logger.WarnContext(ctx, "avatar url rejected", "user_id", userID, "url", rawURL)
		return false
	}

	tempPath, ok := s.fetchToTemp(ctx, parsed.String())
	if !ok {
		return false
	}
	defer os.Remove(tempPath)

	file, err := os.Open(tempPath)
	if err != nil {
		s.logger.WarnContext(ctx, "avatar temp open failed", "user_id", userID, "error", err)
		return false
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		s.logger.WarnContext(ctx, "avatar decode failed", "user_id", userID, "error", err)
		return false
	}

	resized := s.resize(src)
	if err := s.store.Save(ctx, userID, resized); err != nil {
		s.logger.WarnContext(ctx, "avatar store failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (s *Service) fetchToTemp(ctx context.Context, fetchURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "avatar fetch failed", "url", fetchURL, "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.WarnContext(ctx, "avatar fetch bad status", "url", fetchURL, "status", resp.StatusCode)
		return "", false
	}

	tmp, err := os.CreateTemp("", "avatar-*")
	if err != nil {
		return "", false
	}
	defer tmp.Close()

	// +1 so an over-limit body is detectable.
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil || n > s.maxBytes {
		os.Remove(tmp.Name())
		s.logger.WarnContext(ctx, "avatar download rejected", "url", fetchURL, "bytes", n, "error", err)
		return "", false
	}
	return tmp.Name(), true
}

func (s *Service) resize(src image.Image) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() <= s.targetPixels && bounds.Dy() <= s.targetPixels {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.targetPixels, s.targetPixels))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
