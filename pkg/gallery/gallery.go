// Package gallery notifies the media index about newly written files.
//
// Registration is fire-and-forget with an optional enrichment: the index may
// answer with a content URI at any time, or never. No timeout is enforced,
// so consumers must not assume bounded latency for the URI.
package gallery

import (
	"context"
	"sync"

	"github.com/menta2k/camera-capture/internal/logger"
)

// Indexer is the media-index service. Scan returns the URI assigned to the
// file, or an empty string when the index has none.
type Indexer interface {
	Scan(ctx context.Context, path string) (string, error)
}

// Pending is the future result of a registration
type Pending struct {
	path string
	done chan struct{}
	once sync.Once
	uri  string
	err  error
}

func newPending(path string) *Pending {
	return &Pending{path: path, done: make(chan struct{})}
}

func (p *Pending) resolve(uri string, err error) {
	p.once.Do(func() {
		p.uri = uri
		p.err = err
		close(p.done)
	})
}

// Path returns the registered file path
func (p *Pending) Path() string {
	return p.path
}

// Done is closed when the index answered
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// URI returns the assigned URI without blocking. ok is false while the
// index has not answered or when it answered without a URI.
func (p *Pending) URI() (uri string, ok bool) {
	select {
	case <-p.done:
		return p.uri, p.uri != ""
	default:
		return "", false
	}
}

// Wait blocks until the index answers or ctx is done
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.uri, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Registrar hands files to an Indexer
type Registrar struct {
	indexer Indexer
	wg      sync.WaitGroup
}

// NewRegistrar creates a registrar over an index service
func NewRegistrar(indexer Indexer) *Registrar {
	return &Registrar{indexer: indexer}
}

// Register asks the index to scan path and returns the pending URI
func (r *Registrar) Register(path string) *Pending {
	p := newPending(path)
	if r == nil || r.indexer == nil {
		p.resolve("", nil)
		return p
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		uri, err := r.indexer.Scan(context.Background(), path)
		log := logger.WithComponent("gallery")
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("media scan failed")
		} else {
			log.Debug().Str("path", path).Str("uri", uri).Msg("media scan completed")
		}
		p.resolve(uri, err)
	}()
	return p
}

// ScanBestEffort notifies the index without waiting for or keeping the answer
func (r *Registrar) ScanBestEffort(path string) {
	_ = r.Register(path)
}

// Wait blocks until every outstanding scan has returned. It is meant for
// shutdown and tests; a hung index blocks it forever.
func (r *Registrar) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
