package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"SCProject/logger"
	"SCProject/module/chat/model"
	chatstore "SCProject/module/chat/service"
	errs "SCProject/tools/errs"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ChunkError is the structured rejection of a chunk submission (stale
// offset, completed session). It carries the authoritative current offset
// so the client can resynchronize and retry.
type ChunkError struct {
	Message string
	Current int64
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s (current offset %d)", e.Message, e.Current)
}

type Config struct {
	TmpDir      string
	ChunkSize   int64
	MaxFileSize int64
	SessionTTL  time.Duration // idle incomplete sessions older than this are purged
	SweepEvery  time.Duration
	Clock       func() time.Time // injectable for tests; nil => time.Now
}

func (c *Config) norm() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1 << 20
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 2 << 30
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Hour
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Manager runs the resumable upload protocol over stateless calls:
// Init -> Receiving (one accepted chunk per loop) -> Completed. Chunk
// submissions for one session are serialized in-process; the store's
// check-and-advance backstops cross-process writers.
type Manager struct {
	store chatstore.UploadStore
	files *Storage
	cfg   Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewManager(store chatstore.UploadStore, files *Storage, cfg Config) (*Manager, error) {
	cfg.norm()
	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "upload tmp dir")
	}
	m := &Manager{
		store:  store,
		files:  files,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m, nil
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) ChunkSize() int64 { return m.cfg.ChunkSize }

type InitResult struct {
	UploadID  string
	Offset    int64
	ChunkSize int64
}

// Init allocates a session. No bytes move yet.
func (m *Manager) Init(ctx context.Context, ownerID int64, filename string, size int64, mimeType string) (*InitResult, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, errs.ErrBadRequest.WithDetail("missing filename")
	}
	if size <= 0 {
		return nil, errs.ErrBadRequest.WithDetail("file_size must be positive")
	}
	if size > m.cfg.MaxFileSize {
		return nil, errs.ErrBadRequest.WithDetail("file too large")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := m.cfg.Clock().UTC()
	sess := &model.UploadSession{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Filename:  filename,
		TotalSize: size,
		MimeType:  mimeType,
		State:     model.UploadInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &InitResult{UploadID: sess.ID, Offset: 0, ChunkSize: m.cfg.ChunkSize}, nil
}

type ChunkResult struct {
	Completed   bool
	Offset      int64
	FilePath    string
	MessageType string
}

// AppendChunk accepts one chunk at the declared offset. The offset must
// equal bytes_received exactly; otherwise the caller gets a ChunkError
// with the authoritative offset and the session is untouched. A failed
// disk or store write never advances the offset.
func (m *Manager) AppendChunk(ctx context.Context, ownerID int64, id string, offset int64, chunk []byte) (*ChunkResult, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, &ChunkError{Message: "upload already completed", Current: sess.BytesReceived}
	}
	if sess.BytesReceived >= sess.TotalSize {
		// every byte already landed but an earlier finalization attempt
		// failed partway; retry it instead of demanding more data
		return m.finalizeSession(ctx, sess)
	}
	if len(chunk) == 0 {
		return nil, errs.ErrBadRequest.WithDetail("empty chunk")
	}
	if offset != sess.BytesReceived {
		return nil, &ChunkError{Message: "offset mismatch", Current: sess.BytesReceived}
	}
	if offset+int64(len(chunk)) > sess.TotalSize {
		return nil, errs.ErrBadRequest.WithDetail("chunk exceeds declared file size")
	}

	tmp := m.tmpPath(id)
	if err := writeAt(tmp, chunk, offset); err != nil {
		return nil, errors.Wrap(err, "chunk write")
	}

	if err := m.store.AdvanceOffset(ctx, id, offset, int64(len(chunk))); err != nil {
		// roll the file back so bytes and metadata stay in step
		_ = os.Truncate(tmp, offset)
		if errors.Is(err, chatstore.ErrOffsetConflict) {
			if cur, gerr := m.store.GetOwned(ctx, id, ownerID); gerr == nil {
				return nil, &ChunkError{Message: "offset mismatch", Current: cur.BytesReceived}
			}
			return nil, &ChunkError{Message: "offset mismatch", Current: offset}
		}
		return nil, err
	}

	newOffset := offset + int64(len(chunk))
	if newOffset < sess.TotalSize {
		return &ChunkResult{Offset: newOffset}, nil
	}
	return m.finalizeSession(ctx, sess)
}

// finalizeSession assembles a fully-received session into permanent
// storage and marks it completed. Safe to retry: a re-run after a
// partial earlier attempt picks up where it broke off.
func (m *Manager) finalizeSession(ctx context.Context, sess *model.UploadSession) (*ChunkResult, error) {
	name := sess.ID + "_" + sess.Filename
	ref, err := m.files.Finalize(m.tmpPath(sess.ID), classify(sess.MimeType, sess.Filename), name)
	if err != nil {
		logger.Errorf("[upload] finalize failed id=%s err=%v", sess.ID, err)
		return nil, errs.ErrInternal
	}
	if err := m.store.Complete(ctx, sess.ID, ref); err != nil {
		logger.Errorf("[upload] complete mark failed id=%s err=%v", sess.ID, err)
		return nil, err
	}
	m.dropLock(sess.ID)

	return &ChunkResult{
		Completed:   true,
		Offset:      sess.TotalSize,
		FilePath:    ref,
		MessageType: messageTypeFor(sess.MimeType),
	}, nil
}

type StatusResult struct {
	UploadID  string
	Offset    int64
	Completed bool
}

// Status reports offset and completion for a session owned by the caller;
// someone else's session reads as not-found.
func (m *Manager) Status(ctx context.Context, ownerID int64, id string) (*StatusResult, error) {
	sess, err := m.store.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{UploadID: sess.ID, Offset: sess.BytesReceived, Completed: sess.Completed()}, nil
}

func (m *Manager) tmpPath(id string) string {
	return filepath.Join(m.cfg.TmpDir, id+".part")
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) dropLock(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

func (m *Manager) sweeper() {
	t := time.NewTicker(m.cfg.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.SweepOnce(context.Background())
		}
	}
}

// SweepOnce purges sessions idle past the TTL along with their temp files.
func (m *Manager) SweepOnce(ctx context.Context) {
	cutoff := m.cfg.Clock().UTC().Add(-m.cfg.SessionTTL)
	victims, err := m.store.PurgeIdleBefore(ctx, cutoff)
	if err != nil {
		logger.Warnf("[upload] sweep failed: %v", err)
		return
	}
	for _, v := range victims {
		_ = os.Remove(m.tmpPath(v.ID))
		m.dropLock(v.ID)
	}
	if len(victims) > 0 {
		logger.Infof("[upload] swept %d abandoned sessions", len(victims))
	}
}

func writeAt(path string, chunk []byte, offset int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(chunk, offset); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// classify picks the permanent tree for a finished upload: distributable
// application packages go under apps/, everything else is a chat
// attachment.
func classify(mimeType, filename string) string {
	switch mimeType {
	case "application/vnd.android.package-archive",
		"application/x-msdownload",
		"application/x-apple-diskimage":
		return ClassPackage
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".apk", ".ipa", ".exe", ".msi", ".dmg":
		return ClassPackage
	}
	return ClassAttachment
}

// messageTypeFor maps a mime type to the chat message kind a client would
// use when embedding the finished file.
func messageTypeFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return model.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return model.KindVoice
	}
	return model.KindFile
}
