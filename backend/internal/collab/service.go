package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"composer/backend/internal/cache"
	"composer/backend/internal/doc"
	"composer/backend/internal/ime"
	"composer/backend/internal/logger"
	"composer/backend/internal/mutation"
	"composer/backend/internal/ot/textx"
)

// Service composes editing commands into mutations and applies them to the
// live document, one document at a time.
type Service interface {
	Load(ctx context.Context, docID string) (Snapshot, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)

	InsertText(ctx context.Context, docID string, o Origin, sel doc.TextRange, text string) (Applied, error)
	Delete(ctx context.Context, docID string, o Origin, sel doc.TextRange, dir textx.Direction) (Applied, error)
	Replace(ctx context.Context, docID string, o Origin, sel doc.TextRange, body *doc.Body) (Applied, error)
	AddRange(ctx context.Context, docID string, o Origin, req AddRangeRequest) (Applied, error)
	DeleteRange(ctx context.Context, docID string, o Origin, req DeleteRangeRequest) (Applied, error)

	IMEStart(ctx context.Context, docID string, o Origin, sel doc.TextRange) error
	IMEInput(ctx context.Context, docID string, o Origin, p ime.InputParams) (Applied, error)

	// MutationsSince lets a reconnecting client catch up.
	MutationsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]Applied, error)
	SaveSnapshot(ctx context.Context, docID string) error
}

type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, d *doc.Document) error
	// LatestDocumentSnapshot returns a nil document when none was saved.
	LatestDocumentSnapshot(ctx context.Context, docID string) (*doc.Document, uint64, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)
	DocumentExists(ctx context.Context, docID string) (bool, error)
}

type SessionStore interface {
	LoadSession(ctx context.Context, docID string, userID uint64) (*ime.Session, error)
	SaveSession(ctx context.Context, docID string, userID uint64, s *ime.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, docID string, userID uint64) error
}

type EventSink interface {
	Enqueue(ctx context.Context, evt MutationEvent) error
}

// Notifier is told about every applied mutation, in revision order per
// document.
type Notifier func(docID string, a Applied)

// Origin identifies who issued a command. ClientID is the websocket
// connection, empty for HTTP callers.
type Origin struct {
	AuthorID uint64
	ClientID string
}

type Applied struct {
	Revision uint64            `json:"revision"`
	AuthorID uint64            `json:"authorId"`
	ClientID string            `json:"clientId,omitempty"`
	Mutation mutation.Mutation `json:"mutation"`
	// Cursor is the caller's caret carried across a delete-range.
	Cursor    *int      `json:"cursor,omitempty"`
	AppliedAt time.Time `json:"appliedAt"`
}

type Snapshot struct {
	Document *doc.Document `json:"document"`
	Revision uint64        `json:"revision"`
}

type AddRangeRequest struct {
	Selection   doc.TextRange       `json:"selection"`
	RangeID     string              `json:"rangeId"`
	RangeType   doc.CustomRangeType `json:"rangeType"`
	Properties  doc.Properties      `json:"properties"`
	WholeEntity bool                `json:"wholeEntity"`
}

type DeleteRangeRequest struct {
	RangeID   string    `json:"rangeId"`
	SegmentID string    `json:"segmentId"`
	Insert    *doc.Body `json:"insert,omitempty"`
	Cursor    *int      `json:"cursor,omitempty"`
}

var (
	ErrDocumentNotFound   = errors.New("DOCUMENT_NOT_FOUND")
	ErrSegmentNotFound    = errors.New("SEGMENT_NOT_FOUND")
	ErrCommandRejected    = errors.New("COMMAND_REJECTED")
	ErrNoComposition      = errors.New("NO_COMPOSITION")
	ErrInvalidBody        = errors.New("INVALID_BODY")
	ErrStoreNotConfigured = errors.New("STORE_NOT_CONFIGURED")
)

const (
	defaultRingCap    = 1024
	defaultSessionTTL = 10 * time.Minute
	enqueueTimeout    = 100 * time.Millisecond
)

type docState struct {
	mu       sync.RWMutex
	doc      *doc.Document
	revision uint64
	ring     []Applied
}

type Options struct {
	Snapshots    SnapshotStore
	Documents    DocumentStore
	Sessions     SessionStore
	Events       EventSink
	RingCapacity int
	SessionTTL   time.Duration
	Logger       *zap.Logger
}

// InMemoryService keeps every open document in memory. Snapshots are loaded
// on first use and written back on SaveSnapshot.
type InMemoryService struct {
	mu   sync.RWMutex
	docs map[string]*docState
	sf   singleflight.Group

	ringCap    int
	sessionTTL time.Duration

	snapshots SnapshotStore
	documents DocumentStore
	sessions  SessionStore
	events    EventSink
	notify    Notifier
	log       *zap.Logger
}

func NewInMemoryService(opt Options) *InMemoryService {
	s := &InMemoryService{
		docs:       make(map[string]*docState),
		ringCap:    opt.RingCapacity,
		sessionTTL: opt.SessionTTL,
		snapshots:  opt.Snapshots,
		documents:  opt.Documents,
		sessions:   opt.Sessions,
		events:     opt.Events,
		log:        logger.OrNop(opt.Logger),
	}
	if s.ringCap <= 0 {
		s.ringCap = defaultRingCap
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	if s.sessions == nil {
		s.sessions = cache.NewMemorySessions()
	}
	return s
}

// SetNotifier must be called before the service takes traffic.
func (s *InMemoryService) SetNotifier(fn Notifier) {
	s.notify = fn
}

func (s *InMemoryService) lookup(docID string) *docState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID]
}

// state returns the live document, loading it at most once however many
// callers race on a cold document.
func (s *InMemoryService) state(ctx context.Context, docID string) (*docState, error) {
	if ds := s.lookup(docID); ds != nil {
		return ds, nil
	}
	v, err, _ := s.sf.Do(docID, func() (interface{}, error) {
		if ds := s.lookup(docID); ds != nil {
			return ds, nil
		}
		ds, err := s.load(ctx, docID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing := s.docs[docID]; existing != nil {
			return existing, nil
		}
		s.docs[docID] = ds
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*docState), nil
}

func (s *InMemoryService) load(ctx context.Context, docID string) (*docState, error) {
	if s.documents != nil {
		ok, err := s.documents.DocumentExists(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("look up document %s: %w", docID, err)
		}
		if !ok {
			return nil, ErrDocumentNotFound
		}
	}
	ds := &docState{ring: make([]Applied, 0, s.ringCap)}
	if s.snapshots != nil {
		d, rev, err := s.snapshots.LatestDocumentSnapshot(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", docID, err)
		}
		if d != nil {
			ds.doc, ds.revision = d, rev
		}
	}
	if ds.doc == nil {
		ds.doc = doc.NewDocument(docID, "")
	}
	logger.WithDoc(s.log, docID).Debug("document loaded", zap.Uint64("revision", ds.revision))
	return ds, nil
}

func (s *InMemoryService) Load(ctx context.Context, docID string) (Snapshot, error) {
	ds, err := s.state(ctx, docID)
	if err != nil {
		return Snapshot{}, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return Snapshot{Document: ds.doc.Clone(), Revision: ds.revision}, nil
}

func (s *InMemoryService) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	if s.documents == nil {
		return "", ErrStoreNotConfigured
	}
	return s.documents.CreateDocument(ctx, ownerID, title)
}

type composeFunc func(d *doc.Document) (mutation.Mutation, bool)

// commit composes against the current document under the document lock,
// applies the result and records it. A composed mutation that does not replay
// cleanly, or leaves an invalid body behind, is a composition bug and panics.
func (s *InMemoryService) commit(ctx context.Context, docID string, o Origin, compose composeFunc) (Applied, error) {
	ds, err := s.state(ctx, docID)
	if err != nil {
		return Applied{}, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	m, ok := compose(ds.doc)
	if !ok {
		return Applied{}, ErrCommandRejected
	}
	m.UnitID = docID
	if len(m.Actions) == 0 {
		return Applied{Revision: ds.revision, AuthorID: o.AuthorID, ClientID: o.ClientID, Mutation: m, AppliedAt: time.Now()}, nil
	}

	next, err := m.Apply(ds.doc)
	if err != nil {
		panic(fmt.Sprintf("collab: mutation %s on %s does not replay: %v", m.ID, docID, err))
	}
	if err := validateDocument(next); err != nil {
		panic(fmt.Sprintf("collab: mutation %s on %s: %v", m.ID, docID, err))
	}

	ds.doc = next
	ds.revision++
	applied := Applied{
		Revision:  ds.revision,
		AuthorID:  o.AuthorID,
		ClientID:  o.ClientID,
		Mutation:  m,
		AppliedAt: time.Now(),
	}

	// drop the oldest entry once the ring is full
	if len(ds.ring) == s.ringCap {
		copy(ds.ring[0:], ds.ring[1:])
		ds.ring = ds.ring[:len(ds.ring)-1]
	}
	ds.ring = append(ds.ring, applied)

	if s.events != nil {
		ectx, cancel := context.WithTimeout(ctx, enqueueTimeout)
		if err := s.events.Enqueue(ectx, newMutationEvent(docID, applied)); err != nil {
			logger.WithDoc(s.log, docID).Warn("mutation event dropped",
				zap.Uint64("revision", applied.Revision), zap.Error(err))
		}
		cancel()
	}
	if s.notify != nil {
		s.notify(docID, applied)
	}
	return applied, nil
}

func validateDocument(d *doc.Document) error {
	if err := d.Body.Validate(); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	for id, b := range d.Headers {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("header %s: %w", id, err)
		}
	}
	for id, b := range d.Footers {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("footer %s: %w", id, err)
		}
	}
	return nil
}

// checkFragment rejects client-supplied bodies that would corrupt the
// document once spliced in.
func checkFragment(b *doc.Body) error {
	if b == nil {
		return nil
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	anchored := make(map[int]bool, 2*len(b.CustomRanges))
	for _, r := range b.CustomRanges {
		anchored[r.Start()], anchored[r.End()] = true, true
	}
	for i, r := range b.Runes() {
		switch {
		case r == doc.SectionBreak:
			return fmt.Errorf("%w: section break in fragment", ErrInvalidBody)
		case (r == doc.CustomRangeStart || r == doc.CustomRangeEnd) && !anchored[i]:
			return fmt.Errorf("%w: stray range sentinel at %d", ErrInvalidBody, i)
		}
	}
	return nil
}

func fromEdit(d *doc.Document, segmentID string, e textx.Edit) mutation.Mutation {
	path, _ := mutation.EditPath(d, segmentID)
	m := mutation.New(d.ID)
	m.Actions = mutation.EditOp(e.Ops, path)
	m.TextRanges = []doc.TextRange{e.Caret}
	return m
}

// segmentGuard turns a missing segment into ErrSegmentNotFound before the
// composer reports a generic rejection.
func segmentGuard(segmentID string, compose composeFunc, missing *bool) composeFunc {
	return func(d *doc.Document) (mutation.Mutation, bool) {
		if _, ok := d.SegmentBody(segmentID); !ok {
			*missing = true
			return mutation.Mutation{}, false
		}
		return compose(d)
	}
}

func (s *InMemoryService) run(ctx context.Context, docID string, o Origin, segmentID string, compose composeFunc) (Applied, error) {
	var missing bool
	a, err := s.commit(ctx, docID, o, segmentGuard(segmentID, compose, &missing))
	if missing {
		return Applied{}, ErrSegmentNotFound
	}
	return a, err
}

func (s *InMemoryService) InsertText(ctx context.Context, docID string, o Origin, sel doc.TextRange, text string) (Applied, error) {
	if err := checkFragment(doc.NewBody(text)); err != nil {
		return Applied{}, err
	}
	return s.run(ctx, docID, o, sel.SegmentID, func(d *doc.Document) (mutation.Mutation, bool) {
		e, ok := textx.InsertText(d, sel, text, sel.Style)
		if !ok {
			return mutation.Mutation{}, false
		}
		return fromEdit(d, sel.SegmentID, e), true
	})
}

func (s *InMemoryService) Delete(ctx context.Context, docID string, o Origin, sel doc.TextRange, dir textx.Direction) (Applied, error) {
	return s.run(ctx, docID, o, sel.SegmentID, func(d *doc.Document) (mutation.Mutation, bool) {
		e, ok := textx.DeleteText(d, sel, dir)
		if !ok {
			return mutation.Mutation{}, false
		}
		return fromEdit(d, sel.SegmentID, e), true
	})
}

func (s *InMemoryService) Replace(ctx context.Context, docID string, o Origin, sel doc.TextRange, body *doc.Body) (Applied, error) {
	if err := checkFragment(body); err != nil {
		return Applied{}, err
	}
	return s.run(ctx, docID, o, sel.SegmentID, func(d *doc.Document) (mutation.Mutation, bool) {
		e, ok := textx.ReplaceWithBody(d, sel, body.Clone())
		if !ok {
			return mutation.Mutation{}, false
		}
		return fromEdit(d, sel.SegmentID, e), true
	})
}

func (s *InMemoryService) AddRange(ctx context.Context, docID string, o Origin, req AddRangeRequest) (Applied, error) {
	if req.RangeID == "" {
		return Applied{}, ErrCommandRejected
	}
	segmentID := req.Selection.SegmentID
	return s.run(ctx, docID, o, segmentID, func(d *doc.Document) (mutation.Mutation, bool) {
		body, _ := d.SegmentBody(segmentID)
		if _, exists := body.FindCustomRange(req.RangeID); exists {
			return mutation.Mutation{}, false
		}
		ops, ok := textx.AddCustomRange(textx.AddCustomRangeParams{
			Range:       req.Selection,
			SegmentID:   segmentID,
			RangeID:     req.RangeID,
			RangeType:   req.RangeType,
			Properties:  req.Properties.Clone(),
			WholeEntity: req.WholeEntity,
			Body:        body,
		})
		if !ok {
			return mutation.Mutation{}, false
		}
		path, _ := mutation.EditPath(d, segmentID)
		m := mutation.New(docID)
		m.Actions = mutation.EditOp(ops, path)
		return m, true
	})
}

func (s *InMemoryService) DeleteRange(ctx context.Context, docID string, o Origin, req DeleteRangeRequest) (Applied, error) {
	if err := checkFragment(req.Insert); err != nil {
		return Applied{}, err
	}
	var cursor *int
	a, err := s.run(ctx, docID, o, req.SegmentID, func(d *doc.Document) (mutation.Mutation, bool) {
		res, ok := textx.DeleteCustomRange(textx.DeleteCustomRangeParams{
			RangeID:   req.RangeID,
			SegmentID: req.SegmentID,
			Doc:       d,
			Insert:    req.Insert.Clone(),
			Cursor:    req.Cursor,
		})
		if !ok {
			return mutation.Mutation{}, false
		}
		cursor = res.Cursor
		path, _ := mutation.EditPath(d, req.SegmentID)
		m := mutation.New(docID)
		m.Actions = mutation.EditOp(res.Ops, path)
		if cursor != nil {
			m.TextRanges = []doc.TextRange{doc.Caret(*cursor, req.SegmentID)}
		}
		return m, true
	})
	if err != nil {
		return Applied{}, err
	}
	a.Cursor = cursor
	return a, nil
}

// IMEStart opens a composition for the author at sel, replacing any earlier
// unfinished one.
func (s *InMemoryService) IMEStart(ctx context.Context, docID string, o Origin, sel doc.TextRange) error {
	ds, err := s.state(ctx, docID)
	if err != nil {
		return err
	}
	ds.mu.RLock()
	_, ok := ds.doc.SegmentBody(sel.SegmentID)
	ds.mu.RUnlock()
	if !ok {
		return ErrSegmentNotFound
	}
	sess := ime.NewSession()
	sess.Start(sel)
	if err := s.sessions.SaveSession(ctx, docID, o.AuthorID, sess, s.sessionTTL); err != nil {
		return fmt.Errorf("save ime session: %w", err)
	}
	return nil
}

func (s *InMemoryService) IMEInput(ctx context.Context, docID string, o Origin, p ime.InputParams) (Applied, error) {
	sess, err := s.sessions.LoadSession(ctx, docID, o.AuthorID)
	if err != nil {
		return Applied{}, fmt.Errorf("load ime session: %w", err)
	}
	if sess == nil {
		return Applied{}, ErrNoComposition
	}
	p.UnitID = docID
	a, err := s.commit(ctx, docID, o, func(d *doc.Document) (mutation.Mutation, bool) {
		return sess.Input(d, p)
	})
	if err != nil {
		return Applied{}, err
	}

	if sess.State == ime.Idle {
		err = s.sessions.DeleteSession(ctx, docID, o.AuthorID)
	} else {
		err = s.sessions.SaveSession(ctx, docID, o.AuthorID, sess, s.sessionTTL)
	}
	if err != nil {
		logger.WithDoc(s.log, docID).Warn("ime session not stored",
			zap.Uint64("user_id", o.AuthorID), zap.Error(err))
	}
	return a, nil
}

func (s *InMemoryService) MutationsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]Applied, error) {
	ds := s.lookup(docID)
	if ds == nil {
		return nil, nil
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var out []Applied
	for _, a := range ds.ring {
		if a.Revision > fromRevision {
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.snapshots == nil {
		return ErrStoreNotConfigured
	}
	ds := s.lookup(docID)
	if ds == nil {
		return ErrDocumentNotFound
	}
	ds.mu.RLock()
	d, rev := ds.doc.Clone(), ds.revision
	ds.mu.RUnlock()
	if err := s.snapshots.SaveDocumentSnapshot(ctx, docID, rev, d); err != nil {
		return fmt.Errorf("save snapshot %s@%d: %w", docID, rev, err)
	}
	return nil
}
