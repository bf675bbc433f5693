package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct {
	mu       sync.Mutex
	calls    map[string]int
	seen     []domain.BookCompletion
	failWith map[string][]error
	onCall   func()
}

func (f *fakeLogger) LogBook(_ context.Context, c domain.BookCompletion) (*domain.BookLogResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	f.calls[c.StudentID]++
	f.seen = append(f.seen, c)
	if errs := f.failWith[c.StudentID]; len(errs) > 0 {
		f.failWith[c.StudentID] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}
	return &domain.BookLogResult{}, nil
}

func newTestConsumer(handler BookLogger) *Consumer {
	cfg := &config.KafkaConfig{RetryAttempts: 3, RetryDelay: time.Millisecond, BatchSize: 10}
	return newConsumer(cfg, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecodeCompletion(t *testing.T) {
	c, err := decodeCompletion([]byte(`{"student_id":"s1","book_id":"b1","pages_read":120,"rating":4}`))
	require.NoError(t, err)
	assert.Equal(t, "s1", c.StudentID)
	assert.Equal(t, 120, c.PagesRead)
	require.NotNil(t, c.Rating)
	assert.Equal(t, 4, *c.Rating)

	_, err = decodeCompletion([]byte(`{"book_id":"b1","pages_read":1}`))
	assert.True(t, domain.IsValidationError(err))

	_, err = decodeCompletion([]byte(`not json`))
	assert.Error(t, err)
}

func TestProcessCompletions_RetriesTransientErrors(t *testing.T) {
	handler := &fakeLogger{
		calls: map[string]int{},
		failWith: map[string][]error{
			"flaky":   {errors.New("connection reset"), errors.New("connection reset")},
			"down":    {errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")},
			"invalid": {domain.NewValidationError("pages_read", "must be positive")},
			"ghost":   {domain.ErrGameStateNotFound},
		},
	}
	consumer := newTestConsumer(handler)

	batch := []domain.BookCompletion{
		{StudentID: "ok", BookID: "b1", PagesRead: 10},
		{StudentID: "flaky", BookID: "b1", PagesRead: 10},
		{StudentID: "down", BookID: "b1", PagesRead: 10},
		{StudentID: "invalid", BookID: "b1", PagesRead: 10},
		{StudentID: "ghost", BookID: "b1", PagesRead: 10},
	}
	processed := consumer.processCompletions(context.Background(), batch)

	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, handler.calls["ok"])
	assert.Equal(t, 3, handler.calls["flaky"])
	assert.Equal(t, 3, handler.calls["down"])
	assert.Equal(t, 1, handler.calls["invalid"])
	assert.Equal(t, 1, handler.calls["ghost"])
}

func TestProcessCompletions_StopCutsBackOffShort(t *testing.T) {
	handler := &fakeLogger{
		calls:    map[string]int{},
		failWith: map[string][]error{"s1": {errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}},
	}
	consumer := newTestConsumer(handler)
	consumer.config.RetryDelay = time.Hour
	handler.onCall = consumer.cancel

	batch := []domain.BookCompletion{
		{StudentID: "s1", BookID: "b1", PagesRead: 1},
		{StudentID: "s2", BookID: "b1", PagesRead: 1},
	}
	processed := consumer.processCompletions(consumer.ctx, batch)
	assert.Zero(t, processed)
	assert.Equal(t, 1, handler.calls["s1"])
	assert.Zero(t, handler.calls["s2"])
}

func TestCompletionFromMessage(t *testing.T) {
	message := &sarama.ConsumerMessage{
		Topic:     "book-completions",
		Partition: 3,
		Offset:    7,
		Value:     []byte(`{"student_id":"s1","book_id":"b1","pages_read":10}`),
	}
	c, err := completionFromMessage(message)
	require.NoError(t, err)
	assert.Equal(t, "book-completions/3/7", c.CompletionID)

	message.Value = []byte(`{"completion_id":"from-app","student_id":"s1","book_id":"b1","pages_read":10}`)
	c, err = completionFromMessage(message)
	require.NoError(t, err)
	assert.Equal(t, "from-app", c.CompletionID)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func completionMessage(offset int64, studentID string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "book-completions",
		Partition: 0,
		Offset:    offset,
		Value:     []byte(`{"student_id":"` + studentID + `","book_id":"b1","pages_read":10}`),
	}
}

func TestConsumeClaim_DrainsAndMarksOnClose(t *testing.T) {
	handler := &fakeLogger{calls: map[string]int{}, failWith: map[string][]error{}}
	consumer := newTestConsumer(handler)
	consumer.config.BatchTimeout = time.Hour

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- completionMessage(10, "s1")
	claim.messages <- &sarama.ConsumerMessage{Offset: 11, Value: []byte(`not json`)}
	claim.messages <- completionMessage(12, "s2")
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	h := &consumerGroupHandler{consumer: consumer}
	require.NoError(t, h.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{10, 11, 12}, session.marked)
	require.Len(t, handler.seen, 2)
	assert.Equal(t, "book-completions/0/10", handler.seen[0].CompletionID)
	assert.Equal(t, "book-completions/0/12", handler.seen[1].CompletionID)
}

func TestConsumeClaim_StopLeavesInterruptedBatchUnmarked(t *testing.T) {
	handler := &fakeLogger{
		calls:    map[string]int{},
		failWith: map[string][]error{"s1": {errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}},
	}
	consumer := newTestConsumer(handler)
	consumer.config.BatchSize = 1
	consumer.config.BatchTimeout = time.Hour
	consumer.config.RetryDelay = time.Hour

	sessionCtx, endSession := context.WithCancel(context.Background())
	handler.onCall = func() {
		consumer.cancel()
		endSession()
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- completionMessage(5, "s1")

	session := &fakeSession{ctx: sessionCtx}
	h := &consumerGroupHandler{consumer: consumer}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ConsumeClaim kept backing off after stop")
	}
	assert.Empty(t, session.marked)
	assert.Equal(t, 1, handler.calls["s1"])
}
