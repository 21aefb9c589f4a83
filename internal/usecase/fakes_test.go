package usecase

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
)

type memFrameStore struct {
	mu      sync.Mutex
	recs    map[uuid.UUID]*entity.FrameRecord
	saveErr error
}

func newMemFrameStore() *memFrameStore {
	return &memFrameStore{recs: make(map[uuid.UUID]*entity.FrameRecord)}
}

func (m *memFrameStore) Save(ctx context.Context, rec *entity.FrameRecord) error {
	return m.SaveBatch(ctx, []*entity.FrameRecord{rec})
}

func (m *memFrameStore) SaveBatch(_ context.Context, recs []*entity.FrameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, r := range recs {
		m.recs[r.ID] = r
	}
	return nil
}

func (m *memFrameStore) List(_ context.Context, sessionID string) ([]*entity.FrameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.FrameRecord
	for _, r := range m.recs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

func (m *memFrameStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *memFrameStore) DeleteMany(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.recs, id)
	}
	return nil
}

func (m *memFrameStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.recs {
		if r.CapturedAt.Before(cutoff) {
			delete(m.recs, id)
			n++
		}
	}
	return n, nil
}

func (m *memFrameStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]entity.CaptureJob
	findErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]entity.CaptureJob)}
}

func (r *memJobRepo) Create(_ context.Context, job *entity.CaptureJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) Update(ctx context.Context, job *entity.CaptureJob) error {
	return r.Create(ctx, job)
}

func (r *memJobRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.CaptureJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return &job, nil
}

type upload struct {
	data        []byte
	contentType string
	jobID       string
}

// fakeStorage copies a fixture file on download and keeps uploads in memory.
type fakeStorage struct {
	mu          sync.Mutex
	fixture     string
	downloadErr error
	uploads     map[string]upload
}

func newFakeStorage(fixture string) *fakeStorage {
	return &fakeStorage{fixture: fixture, uploads: make(map[string]upload)}
}

func (s *fakeStorage) FetchVideo(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	data, err := os.ReadFile(s.fixture)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0644)
}

func (s *fakeStorage) PutExport(_ context.Context, obj port.ExportObject) error {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[obj.Key] = upload{data: data, contentType: obj.ContentType, jobID: obj.JobID}
	return nil
}

func (s *fakeStorage) ExportURL(_ context.Context, key string) (string, error) {
	return "https://exports.test/" + key, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []entity.CaptureStatusMessage
}

func (p *recordingPublisher) PublishStatus(_ context.Context, status entity.CaptureStatusMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *recordingPublisher) last() entity.CaptureStatusMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[len(p.statuses)-1]
}

type recordingDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []port.FailureNotice
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}
