package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/roomrelay/internal/infra/confloader"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading. Renewals usually rewrite the cert and key separately.
const DefaultDebounce = 500 * time.Millisecond

// expiryWarning is how close to NotAfter a loaded certificate starts
// logging warnings.
const expiryWarning = 7 * 24 * time.Hour

// Watcher serves a certificate pair and swaps it when either file changes.
// A pair that fails to load is logged and the previous pair stays in use.
type Watcher struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   *slog.Logger

	cert  atomic.Pointer[tls.Certificate]
	files *confloader.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the debounce duration.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the pair. Call Start to follow changes.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// Start begins following the pair in the background.
func (w *Watcher) Start() error {
	files, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(w.logger),
		confloader.WithDebounce(w.debounce),
	)
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	if err := files.Watch(w.certFile, w.keyFile); err != nil {
		files.Stop()
		return fmt.Errorf("tlsroots: watch pair: %w", err)
	}

	files.OnChange(func(changed []string) {
		if err := w.reload(); err != nil {
			w.logger.Error("certificate reload failed, keeping previous certificate",
				"error", err,
				"changed", changed,
			)
		}
	})
	files.StartAsync()
	w.files = files
	return nil
}

// Stop stops following changes. The last good pair is still served.
func (w *Watcher) Stop() {
	if w.files != nil {
		w.files.Stop()
	}
}

// GetCertificate returns the current pair. It fits tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.cert.Load(), nil
}

// ServerConfig returns a TLS 1.2+ server config that always presents the
// current pair.
func (w *Watcher) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (w *Watcher) reload() error {
	pair, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	if pair.Leaf == nil {
		if pair.Leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return fmt.Errorf("parse leaf: %w", err)
		}
	}
	w.cert.Store(&pair)

	leaf := pair.Leaf
	log := w.logger.With("cert_file", w.certFile, "not_after", leaf.NotAfter)
	log.Info("certificate loaded", "subject", leaf.Subject.CommonName)
	if time.Until(leaf.NotAfter) < expiryWarning {
		log.Warn("certificate expires soon")
	}
	return nil
}
