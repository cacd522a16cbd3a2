package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"communities/internal/application/entity"
	"communities/pkg/broker"
	"communities/pkg/config"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	mu sync.Mutex

	sent        []uuid.UUID
	failed      map[uuid.UUID]string
	markSentErr error

	requeued   int64
	requeueErr error
	gaveUp     int64
	purged     int64

	gotMaxAttempts  int
	gotRequeueLimit int
	gotKeepDays     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{failed: make(map[uuid.UUID]string)}
}

func (f *fakeRepo) CreateMessage(context.Context, *entity.Message) (bool, error) { return true, nil }
func (f *fakeRepo) GetMessage(context.Context, uuid.UUID) (*entity.Message, error) {
	return nil, nil
}
func (f *fakeRepo) GetMessagesByChannel(context.Context, uuid.UUID, int) ([]*entity.Message, error) {
	return nil, nil
}
func (f *fakeRepo) UpdateMessage(context.Context, uuid.UUID, *string, *bool) (*entity.Message, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteMessage(context.Context, uuid.UUID) error { return nil }

func (f *fakeRepo) InsertOutbox(context.Context, *entity.OutboxEvent) error { return nil }
func (f *fakeRepo) ReserveOutboxBatch(context.Context, time.Duration, int) ([]entity.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = cause.Error()
	return nil
}

func (f *fakeRepo) RequeueFailed(_ context.Context, maxAttempts, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotMaxAttempts = maxAttempts
	f.gotRequeueLimit = limit
	return f.requeued, f.requeueErr
}

func (f *fakeRepo) CountGaveUp(_ context.Context, maxAttempts int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gaveUp, nil
}

func (f *fakeRepo) PurgeSent(_ context.Context, keepDays int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotKeepDays = keepDays
	return f.purged, nil
}

func (f *fakeRepo) HealthCheck(context.Context) error { return nil }

func (f *fakeRepo) sentIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.sent...)
}

func (f *fakeRepo) failedCauses() map[uuid.UUID]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]string, len(f.failed))
	for k, v := range f.failed {
		out[k] = v
	}
	return out
}

type fakeTransactions struct {
	mu      sync.Mutex
	batches [][]entity.OutboxEvent
	calls   int
	onDrain func()
}

func (f *fakeTransactions) CreateMessage(context.Context, *entity.Message, []byte) error { return nil }
func (f *fakeTransactions) UpdateMessage(context.Context, uuid.UUID, *string, *bool) (*entity.Message, error) {
	return nil, nil
}
func (f *fakeTransactions) DeleteMessage(context.Context, uuid.UUID, []byte) error { return nil }

func (f *fakeTransactions) GetOutboxBatch(context.Context, config.RelayConfig) ([]entity.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.batches) == 0 {
		if f.onDrain != nil {
			f.onDrain()
		}
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeTransactions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	// publishFn может вернуть ошибку или паниковать; nil — успех
	publishFn func(entity.OutboxEventType, []byte) error
	published []entity.OutboxEventType
}

func (f *fakePublisher) Publish(_ context.Context, eventType entity.OutboxEventType, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishFn != nil {
		if err := f.publishFn(eventType, payload); err != nil {
			return err
		}
	}
	f.published = append(f.published, eventType)
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) HealthCheck(context.Context) error {
	if !f.IsConnected() {
		return broker.ErrNotConnected
	}
	return nil
}

func (f *fakePublisher) publishedTypes() []entity.OutboxEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.OutboxEventType(nil), f.published...)
}

func testConfig() *config.Config {
	return &config.Config{
		Relay: config.RelayConfig{
			BatchSize:   10,
			Lease:       time.Second,
			PollPeriod:  5 * time.Millisecond,
			MaxAttempts: 5,
		},
		Sweep: config.Sweep{
			RequeueLimit: 100,
			SentKeepDays: 7,
		},
	}
}

func newTestService(r *fakeRepo, tx *fakeTransactions, pub *fakePublisher) *ServiceImpl {
	return NewService(r, tx, pub, nil, zap.NewNop().Sugar(), testConfig(), nil)
}

func outboxEvent(t *testing.T, eventType entity.OutboxEventType) entity.OutboxEvent {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return entity.OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   []byte(`{"message_id":"m1"}`),
		Status:    entity.OutboxPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessOneSuccessMarksSent(t *testing.T) {
	r := newFakeRepo()
	pub := &fakePublisher{connected: true}
	s := newTestService(r, &fakeTransactions{}, pub)

	e := outboxEvent(t, entity.EventMessageCreate)
	stop := s.ProcessOne(context.Background(), e)

	assert.False(t, stop)
	assert.Equal(t, []uuid.UUID{e.ID}, r.sentIDs())
	assert.Empty(t, r.failedCauses())
	assert.Equal(t, []entity.OutboxEventType{entity.EventMessageCreate}, pub.publishedTypes())
}

func TestProcessOneTransientErrorAbandonsBatch(t *testing.T) {
	r := newFakeRepo()
	pub := &fakePublisher{
		connected: true,
		publishFn: func(entity.OutboxEventType, []byte) error {
			return &broker.PublishError{Exchange: "notifications", RoutingKey: "message.created", Err: broker.ErrNotConnected}
		},
	}
	s := newTestService(r, &fakeTransactions{}, pub)

	e := outboxEvent(t, entity.EventMessageCreate)
	stop := s.ProcessOne(context.Background(), e)

	assert.True(t, stop, "transient error must abandon the rest of the batch")
	assert.Empty(t, r.sentIDs())
	assert.Contains(t, r.failedCauses(), e.ID)
}

func TestProcessOnePermanentErrorContinuesBatch(t *testing.T) {
	r := newFakeRepo()
	pub := &fakePublisher{
		connected: true,
		publishFn: func(entity.OutboxEventType, []byte) error {
			return &broker.PublishError{Exchange: "notifications", RoutingKey: "message.created", Permanent: true, Err: errors.New("no route")}
		},
	}
	s := newTestService(r, &fakeTransactions{}, pub)

	e := outboxEvent(t, entity.EventMessageCreate)
	stop := s.ProcessOne(context.Background(), e)

	assert.False(t, stop, "permanent error affects only this entry")
	assert.Empty(t, r.sentIDs())
	assert.Contains(t, r.failedCauses(), e.ID)
}

func TestProcessOneRecoversFromPanic(t *testing.T) {
	r := newFakeRepo()
	pub := &fakePublisher{
		connected: true,
		publishFn: func(entity.OutboxEventType, []byte) error {
			panic("poisoned payload")
		},
	}
	s := newTestService(r, &fakeTransactions{}, pub)

	e := outboxEvent(t, entity.EventMessageCreate)

	var stop bool
	assert.NotPanics(t, func() {
		stop = s.ProcessOne(context.Background(), e)
	})

	assert.False(t, stop)
	causes := r.failedCauses()
	require.Contains(t, causes, e.ID)
	assert.Contains(t, causes[e.ID], "panic")
}

func TestProcessOneMarkSentFailureKeepsPending(t *testing.T) {
	r := newFakeRepo()
	r.markSentErr = errors.New("db down")
	pub := &fakePublisher{connected: true}
	s := newTestService(r, &fakeTransactions{}, pub)

	e := outboxEvent(t, entity.EventMessageCreate)
	stop := s.ProcessOne(context.Background(), e)

	// Запись останется PENDING и уйдёт повторно — дубль, не потеря
	assert.False(t, stop)
	assert.Empty(t, r.sentIDs())
	assert.Empty(t, r.failedCauses())
}

func TestRelayRunStopsBatchOnTransientError(t *testing.T) {
	e1 := outboxEvent(t, entity.EventMessageCreate)
	e2 := outboxEvent(t, entity.EventMessageUpdate)
	e3 := outboxEvent(t, entity.EventMessageDelete)

	r := newFakeRepo()
	pub := &fakePublisher{
		connected: true,
		publishFn: func(eventType entity.OutboxEventType, _ []byte) error {
			if eventType == entity.EventMessageUpdate {
				return &broker.PublishError{Exchange: "notifications", RoutingKey: "message.updated", Err: broker.ErrNotConnected}
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	tx := &fakeTransactions{
		batches: [][]entity.OutboxEvent{{e1, e2, e3}},
		onDrain: cancel,
	}

	s := newTestService(r, tx, pub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RelayRun(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	// e1 отправлен, e2 упал transient, e3 не трогали
	assert.Equal(t, []uuid.UUID{e1.ID}, r.sentIDs())
	assert.Contains(t, r.failedCauses(), e2.ID)
	assert.NotContains(t, r.failedCauses(), e3.ID)
	assert.Equal(t, []entity.OutboxEventType{entity.EventMessageCreate}, pub.publishedTypes())
}

func TestRelayRunSkipsPollWhenDisconnected(t *testing.T) {
	r := newFakeRepo()
	pub := &fakePublisher{connected: false}
	tx := &fakeTransactions{}
	s := newTestService(r, tx, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RelayRun(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	assert.Zero(t, tx.callCount(), "disconnected broker must skip reservation entirely")
}

func TestSweepOutboxRequeuesAndCounts(t *testing.T) {
	r := newFakeRepo()
	r.requeued = 4
	r.gaveUp = 2
	s := newTestService(r, &fakeTransactions{}, &fakePublisher{connected: true})

	s.SweepOutbox(context.Background())

	assert.Equal(t, 5, r.gotMaxAttempts)
	assert.Equal(t, 100, r.gotRequeueLimit)
}

func TestSweepOutboxRequeueErrorDoesNotPanic(t *testing.T) {
	r := newFakeRepo()
	r.requeueErr = errors.New("db down")
	s := newTestService(r, &fakeTransactions{}, &fakePublisher{connected: true})

	assert.NotPanics(t, func() {
		s.SweepOutbox(context.Background())
	})
}

func TestPurgeOutbox(t *testing.T) {
	r := newFakeRepo()
	r.purged = 9
	s := newTestService(r, &fakeTransactions{}, &fakePublisher{connected: true})

	s.PurgeOutbox(context.Background())

	assert.Equal(t, 7, r.gotKeepDays)
}
