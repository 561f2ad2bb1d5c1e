// Package conversion is the Conversion Pipeline (spec §4.3): turns a source
// document into a published, sandboxed multiplayer pair (instrumented
// document + validator module) and drives a Room through
// pending -> processing -> complete/failed.
package conversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"ludoforge/internal/analyzer"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/sandbox"
	"ludoforge/internal/store"
	"ludoforge/internal/validatorspec"
)

// Defaults per spec §4.3 "Time and concurrency".
const (
	DefaultLLMBudget   = 20 * time.Second
	DefaultLLMRetries  = 3
	DefaultConcurrency = 4
)

// ArtifactStore is the content-addressed publication target for converted
// documents (spec §4.3 step 8). The validator artifact itself is addressed
// and stored by sandbox.Sandbox; this covers the document half of the pair.
type ArtifactStore interface {
	Publish(content string) (ref string, err error)
	Fetch(ref string) (content string, ok bool)
}

// MemoryArtifactStore hashes content with sha256 and keeps it in a map,
// mirroring sandbox.Sandbox's own content-addressing so both halves of a
// converted pair are addressed the same way.
type MemoryArtifactStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{docs: make(map[string]string)}
}

func (m *MemoryArtifactStore) Publish(content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	ref := hex.EncodeToString(sum[:])
	m.mu.Lock()
	m.docs[ref] = content
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryArtifactStore) Fetch(ref string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.docs[ref]
	return content, ok
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)

// Pipeline drives conversions. One Pipeline is shared across all rooms; its
// worker pool bounds how many conversions run at once, and inflight tracks
// which room ids currently have a conversion running so request_conversion
// stays idempotent per spec §4.3.
type Pipeline struct {
	store     store.Store
	artifacts ArtifactStore
	sbox      *sandbox.Sandbox
	llm       LLM
	pool      *pool.Pool

	inflightMu sync.Mutex
	inflight   map[string]bool

	llmBudget  time.Duration
	llmRetries int
}

// New constructs a Pipeline with a bounded worker pool of the given
// concurrency.
func New(st store.Store, artifacts ArtifactStore, sbox *sandbox.Sandbox, llm LLM, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{
		store:      st,
		artifacts:  artifacts,
		sbox:       sbox,
		llm:        llm,
		pool:       pool.New().WithMaxGoroutines(concurrency),
		inflight:   make(map[string]bool),
		llmBudget:  DefaultLLMBudget,
		llmRetries: DefaultLLMRetries,
	}
}

// RequestConversion is idempotent in roomID: a room already in a terminal
// conversion state returns immediately with its existing record; a room
// already being converted also returns immediately without starting a
// second conversion (spec §4.3 "Time and concurrency").
func (p *Pipeline) RequestConversion(roomID, sourceDocument string) (*roomkind.Room, error) {
	if existing, err := p.store.Get(roomID); err == nil {
		if existing.ConversionStatus == roomkind.ConversionComplete || existing.ConversionStatus == roomkind.ConversionFailed {
			return existing, nil
		}
		if p.isInflight(roomID) {
			return existing, nil
		}
	}

	room := roomkind.NewRoom(roomID, sourceDocument)
	if err := p.store.Put(room); err != nil {
		return nil, fmt.Errorf("%w: %v", roomkind.ErrStoreFailure, err)
	}
	// The store keeps room itself, which run mutates; the caller gets a copy
	// taken while the room is still pending.
	pending := room.Clone()

	p.markInflight(roomID)
	p.pool.Go(func() {
		defer p.clearInflight(roomID)
		p.run(roomID, sourceDocument)
	})

	return pending, nil
}

// Status returns the latest conversion state for a room.
func (p *Pipeline) Status(roomID string) (*roomkind.Room, error) {
	return p.store.Get(roomID)
}

// Document fetches a published, instrumented document by its content-address
// ref, for the transport layer to serve back to a joining client.
func (p *Pipeline) Document(ref string) (string, bool) {
	return p.artifacts.Fetch(ref)
}

func (p *Pipeline) isInflight(roomID string) bool {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	return p.inflight[roomID]
}

func (p *Pipeline) markInflight(roomID string) {
	p.inflightMu.Lock()
	p.inflight[roomID] = true
	p.inflightMu.Unlock()
}

func (p *Pipeline) clearInflight(roomID string) {
	p.inflightMu.Lock()
	delete(p.inflight, roomID)
	p.inflightMu.Unlock()
}

// run executes steps 2-10 of the stepwise design. Any failure transitions
// the room to failed with a structured reason and leaves the original
// document intact for a subsequent request_conversion retry.
func (p *Pipeline) run(roomID, sourceDocument string) {
	p.transition(roomID, roomkind.ConversionProcessing, "")

	report := analyzer.Analyze(sourceDocument)

	instrumented := InstrumentMarkers(sourceDocument)

	ctx, cancel := context.WithTimeout(context.Background(), p.llmBudget)
	defer cancel()

	converted, err := p.convertWithRetry(ctx, instrumented, report)
	if err != nil {
		p.fail(roomID, roomkind.ErrLLMFailed, err)
		return
	}

	injected, err := InjectBridge(converted, roomID)
	if err != nil {
		p.fail(roomID, roomkind.ErrArtifactPublishFailed, err)
		return
	}

	validatorJS, err := validatorspec.SynthesizeJS(report)
	if err != nil {
		p.fail(roomID, roomkind.ErrAnalysisFailed, err)
		return
	}

	documentRef, err := p.artifacts.Publish(injected)
	if err != nil {
		p.fail(roomID, roomkind.ErrArtifactPublishFailed, err)
		return
	}

	validatorRef, err := p.sbox.Deploy(roomID, validatorJS)
	if err != nil {
		p.fail(roomID, roomkind.ErrValidatorDeployFailed, err)
		return
	}

	fallback := validatorspec.GenericConfigFromReport(report)

	_, err = p.store.Update(roomID, func(room *roomkind.Room) error {
		room.Kind = report.Kind
		room.DocumentRef = documentRef
		room.ValidatorRef = validatorRef
		room.ConversionStatus = roomkind.ConversionComplete
		room.ConversionError = ""
		room.Metadata.TurnBased = fallback.TurnBased
		room.Metadata.Board = fallback.Board
		room.Metadata.TargetScore = fallback.TargetScore
		room.Metadata.MaxPlayers = fallback.MaxPlayers
		room.Metadata.MinPlayers = fallback.MinPlayers
		return nil
	})
	if err != nil {
		p.fail(roomID, roomkind.ErrStoreFailure, err)
		return
	}
}

// convertWithRetry calls the LLM collaborator, retrying on a malformed or
// truncated result up to the pipeline's retry budget (spec §4.3 step 5).
func (p *Pipeline) convertWithRetry(ctx context.Context, sourceDocument string, report analyzer.Report) (string, error) {
	req := Request{
		SourceDocument: sourceDocument,
		Report:         report,
		Affordances:    RequiredAffordances(report),
	}

	var lastErr error
	for attempt := 0; attempt < p.llmRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		doc, err := p.llm.Convert(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if !isWellFormedDocument(doc, sourceDocument) {
			lastErr = fmt.Errorf("converted document missing structure or truncated")
			continue
		}
		return doc, nil
	}
	return "", lastErr
}

// isWellFormedDocument rejects the two failure modes spec §4.3 step 5
// names: missing document structure, and truncation relative to the input.
func isWellFormedDocument(doc, source string) bool {
	if len(doc) < len(source)/2 {
		return false
	}
	lower := strings.ToLower(doc)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body")
}

func (p *Pipeline) transition(roomID string, status roomkind.ConversionStatus, reason string) {
	_, _ = p.store.Update(roomID, func(room *roomkind.Room) error {
		room.ConversionStatus = status
		room.ConversionError = reason
		return nil
	})
}

func (p *Pipeline) fail(roomID string, sentinel error, cause error) {
	p.transition(roomID, roomkind.ConversionFailed, fmt.Sprintf("%s: %v", sentinel, cause))
}
