package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

// BookLogger records book completions
type BookLogger interface {
	LogBook(ctx context.Context, c domain.BookCompletion) (*domain.BookLogResult, error)
}

// Consumer consumes book-completion events from Kafka. Producers key messages
// by student id, so each student's events arrive in order on one partition.
type Consumer struct {
	config        *config.KafkaConfig
	handler       BookLogger
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler BookLogger, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	c := newConsumer(cfg, handler, logger)
	c.consumerGroup = consumerGroup
	return c, nil
}

func newConsumer(cfg *config.KafkaConfig, handler BookLogger, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan bool),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// drainTimeout bounds the final batch handled when a session ends
const drainTimeout = 5 * time.Second

// ConsumeClaim processes messages from a topic partition. Offsets are marked
// only after the batch holding them has been handled; a batch cut short by
// shutdown is left unmarked and redelivered.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.BookCompletion, 0, cfg.BatchSize)
	pending := make([]*sarama.ConsumerMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}

		h.consumer.processCompletions(ctx, batch)
		if ctx.Err() != nil {
			h.consumer.logger.Warn("batch interrupted, leaving offsets for redelivery",
				"messages", len(pending),
				"first_offset", pending[0].Offset,
				"partition", pending[0].Partition,
			)
		} else {
			for _, message := range pending {
				session.MarkMessage(message, "")
			}
		}

		batch = batch[:0]
		pending = pending[:0]
	}

	drain := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(h.consumer.ctx), drainTimeout)
		defer cancel()
		processBatch(ctx)
	}

	for {
		select {
		case <-session.Context().Done():
			drain()
			return nil

		case <-batchTimer.C:
			processBatch(h.consumer.ctx)
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				drain()
				return nil
			}

			pending = append(pending, message)
			completion, err := completionFromMessage(message)
			if err != nil {
				h.consumer.logger.Warn("dropping invalid book completion",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
			} else {
				batch = append(batch, completion)
			}

			if len(pending) >= cfg.BatchSize {
				processBatch(h.consumer.ctx)
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// processCompletions logs each completion in order. Transient failures are
// retried; rejected claims are logged and skipped.
func (c *Consumer) processCompletions(ctx context.Context, batch []domain.BookCompletion) (processed int) {
	for _, completion := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := c.logWithRetry(ctx, completion); err != nil {
			c.logger.Error("failed to log book completion",
				"completion_id", completion.CompletionID,
				"student_id", completion.StudentID,
				"book_id", completion.BookID,
				"error", err,
			)
			continue
		}
		processed++
	}
	c.logger.Debug("processed batch", "batch_size", len(batch), "processed", processed)
	return processed
}

func (c *Consumer) logWithRetry(ctx context.Context, completion domain.BookCompletion) error {
	attempts := max(c.config.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = c.handler.LogBook(opCtx, completion)
		cancel()
		if err == nil || !retryable(err) {
			return err
		}

		if attempt < attempts {
			c.logger.Warn("retrying book completion", "student_id", completion.StudentID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}
	return err
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	return !domain.IsValidationError(err) &&
		!domain.IsNotFoundError(err) &&
		!errors.Is(err, context.Canceled)
}

// completionFromMessage decodes a message. A completion sent without an id is
// keyed by its topic, partition and offset, which stay fixed across redeliveries.
func completionFromMessage(message *sarama.ConsumerMessage) (domain.BookCompletion, error) {
	completion, err := decodeCompletion(message.Value)
	if err != nil {
		return domain.BookCompletion{}, err
	}
	if completion.CompletionID == "" {
		completion.CompletionID = fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
	}
	return completion, nil
}

// decodeCompletion parses a message value and checks the required fields
func decodeCompletion(value []byte) (domain.BookCompletion, error) {
	var completion domain.BookCompletion
	if err := json.Unmarshal(value, &completion); err != nil {
		return domain.BookCompletion{}, fmt.Errorf("decoding completion: %w", err)
	}
	if completion.StudentID == "" || completion.BookID == "" {
		return domain.BookCompletion{}, domain.NewValidationError("", "student_id and book_id are required")
	}
	return completion, nil
}
