package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKafkaReader struct {
	mock.Mock
}

func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *MockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaReader) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ KafkaReader = (*MockKafkaReader)(nil)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConsumer(reader KafkaReader, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		logger:     newTestLogger(),
		topic:      "dispatch_events",
		groupID:    groupID,
		fetchDelay: time.Millisecond,
	}
}

func TestNewKafkaConsumer(t *testing.T) {
	cfg := &config.KafkaConfig{
		Brokers:  "localhost:9092, localhost:9093",
		MinBytes: 1024,
		MaxBytes: 10240,
		MaxWait:  time.Second,
	}

	consumer, err := NewKafkaConsumer(newTestLogger(), cfg, "dispatch_events", "gateway")
	require.NoError(t, err)
	require.NotNil(t, consumer.reader)
	assert.Equal(t, "dispatch_events", consumer.topic)
	assert.NoError(t, consumer.Close())

	_, err = NewKafkaConsumer(newTestLogger(), cfg, "", "gateway")
	assert.Error(t, err)

	_, err = NewKafkaConsumer(newTestLogger(), &config.KafkaConfig{}, "dispatch_events", "")
	assert.Error(t, err)
}

func TestKafkaConsumer_Subscribe(t *testing.T) {
	ok := kafka.Message{Topic: "dispatch_events", Key: []byte("a"), Value: []byte("good")}
	bad := kafka.Message{Topic: "dispatch_events", Key: []byte("b"), Value: []byte("bad")}

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, errors.New("leader not available")).Once()
	reader.On("FetchMessage", mock.Anything).Return(ok, nil).Once()
	reader.On("FetchMessage", mock.Anything).Return(bad, nil).Once()
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, io.EOF).Once()
	reader.On("CommitMessages", mock.Anything, []kafka.Message{ok}).Return(nil).Once()

	var handled []string
	err := newTestConsumer(reader, "processor").Subscribe(context.Background(), func(_ context.Context, key, value []byte) error {
		handled = append(handled, string(key))
		if string(value) == "bad" {
			return errors.New("rejected")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, handled)
	reader.AssertExpectations(t)
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, []kafka.Message{bad})
}

func TestKafkaConsumer_SubscribeWithoutGroupDoesNotCommit(t *testing.T) {
	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Key: []byte("a")}, nil).Once()
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, io.EOF).Once()

	err := newTestConsumer(reader, "").Subscribe(context.Background(), func(context.Context, []byte, []byte) error {
		return nil
	})

	require.NoError(t, err)
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
}

func TestKafkaConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, context.Canceled).Once()

	err := newTestConsumer(reader, "processor").Subscribe(ctx, func(context.Context, []byte, []byte) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.NoError(t, err)
}

func TestKafkaConsumer_Close(t *testing.T) {
	t.Run("CloseWithNilReader", func(t *testing.T) {
		consumer := &KafkaConsumer{logger: newTestLogger()}
		require.NoError(t, consumer.Close())
	})

	t.Run("ClosePropagatesReaderError", func(t *testing.T) {
		reader := new(MockKafkaReader)
		reader.On("Close").Return(errors.New("boom")).Once()
		assert.Error(t, newTestConsumer(reader, "").Close())
	})
}

func TestSubscription_DecodesEvents(t *testing.T) {
	event, err := shared.NewEvent(shared.EventCallCreated, "call-1", shared.Scope{RegionID: "seoul", OfficeID: "gangnam"}, map[string]string{"status": "WAITING"})
	require.NoError(t, err)
	value, err := json.Marshal(event)
	require.NoError(t, err)

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Key: []byte("junk"), Value: []byte("{")}, nil).Once()
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Key: []byte("call-1"), Value: value}, nil).Once()
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, io.EOF).Once()

	sub := NewSubscription(newTestLogger(), newTestConsumer(reader, ""), 4)
	require.NoError(t, sub.Run(context.Background()))

	var got []shared.Event
	for e := range sub.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, shared.EventCallCreated, got[0].Type)
	assert.Equal(t, "gangnam", got[0].OfficeID)
}
