package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

var reviewSnippets = []string{
	"I liked how the main character solved the mystery at the end.",
	"The dragons were scary but the ending made me happy.",
	"This book taught me a lot about how volcanoes work.",
	"My favourite part was when the friends built a raft together.",
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "book-completions", "Kafka topic")
	students := flag.String("students", "", "Student ids (comma-separated)")
	books := flag.String("books", "", "Book ids (comma-separated)")
	maxPages := flag.Int("max-pages", 200, "Upper bound for pages read")
	rate := flag.Int("rate", 5, "Completions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	studentIDs := splitList(*students)
	bookIDs := splitList(*books)
	if len(studentIDs) == 0 || len(bookIDs) == 0 || *rate <= 0 || *maxPages <= 0 {
		fmt.Fprintln(os.Stderr, "usage: reading-producer -students s1,s2 -books b1,b2 [-rate 5] [-max-pages 200]")
		os.Exit(2)
	}

	fmt.Printf("Producing to %s on %s: %d students, %d books, %d/sec\n",
		*topic, *brokers, len(studentIDs), len(bookIDs), *rate)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-deadline:
			shutdown("Duration reached")
			return

		case <-ticker.C:
			completion := randomCompletion(studentIDs, bookIDs, *maxPages)
			data, err := json.Marshal(completion)
			if err != nil {
				log.Printf("Failed to marshal completion: %v", err)
				continue
			}

			// Keyed by student so one student's completions stay ordered
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(completion.StudentID),
				Value: sarama.ByteEncoder(data),
			}
		}
	}
}

func randomCompletion(studentIDs, bookIDs []string, maxPages int) domain.BookCompletion {
	completion := domain.BookCompletion{
		CompletionID: uuid.NewString(),
		StudentID:    studentIDs[rand.IntN(len(studentIDs))],
		BookID:       bookIDs[rand.IntN(len(bookIDs))],
		PagesRead:    rand.IntN(maxPages) + 1,
	}
	if rand.IntN(2) == 0 {
		rating := rand.IntN(5) + 1
		completion.Rating = &rating
		completion.ReviewText = reviewSnippets[rand.IntN(len(reviewSnippets))]
	}
	return completion
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
