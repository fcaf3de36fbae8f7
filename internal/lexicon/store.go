package lexicon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// Source produces a freshly compiled lexicon.
type Source interface {
	Load(ctx context.Context) (*Lexicon, error)
	String() string
}

// FileSource loads a lexicon document from disk.
type FileSource struct {
	Path    string
	Options []Option
}

func (s FileSource) Load(ctx context.Context) (*Lexicon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(s.Path, s.Options...)
}

func (s FileSource) String() string { return "file:" + s.Path }

// ErrNoSource is returned by Reload on a static store.
var ErrNoSource = errors.New("lexicon store has no source")

// ErrNoActiveLexicon is returned when the repository holds no active version.
var ErrNoActiveLexicon = errors.New("no active lexicon in repository")

// RepositorySource loads the active lexicon version from a repository.
type RepositorySource struct {
	Repo    domain.Repository
	Options []Option
}

func (s RepositorySource) Load(ctx context.Context) (*Lexicon, error) {
	rec, err := s.Repo.GetActiveLexicon(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read active lexicon: %w", err)
	}
	if rec == nil {
		return nil, ErrNoActiveLexicon
	}
	format, err := ParseFormat(rec.Format)
	if err != nil {
		return nil, &domain.ConfigurationError{Section: "document", Reason: err.Error()}
	}
	return Load(rec.Document, format, s.Options...)
}

func (s RepositorySource) String() string { return "repository" }

// Store publishes the current lexicon. Readers take a snapshot with Current
// and keep using it for the whole call; a reload swaps the pointer and never
// touches a published lexicon.
type Store struct {
	current atomic.Pointer[Lexicon]
	source  Source
}

// NewStore loads the first lexicon from src. A store cannot start empty.
func NewStore(ctx context.Context, src Source) (*Store, error) {
	lex, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{source: src}
	s.current.Store(lex)
	return s, nil
}

// NewStaticStore wraps an already loaded lexicon. Reload is a no-op error.
func NewStaticStore(lex *Lexicon) *Store {
	s := &Store{}
	s.current.Store(lex)
	return s
}

// Current returns the published lexicon.
func (s *Store) Current() *Lexicon {
	return s.current.Load()
}

// Swap publishes lex and returns the previous lexicon.
func (s *Store) Swap(lex *Lexicon) *Lexicon {
	return s.current.Swap(lex)
}

// Source returns the configured source, or nil for a static store.
func (s *Store) Source() Source {
	return s.source
}

// Reload loads from the source and publishes the result. On failure the
// current lexicon stays in place.
func (s *Store) Reload(ctx context.Context) (*Lexicon, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	lex, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(lex)
	return lex, nil
}
