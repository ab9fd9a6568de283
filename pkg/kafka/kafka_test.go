package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, 1)
		assert.True(t, d > 50*time.Millisecond && d <= 100*time.Millisecond, d)

		d = backoffWithJitter(100*time.Millisecond, time.Second, 10)
		assert.True(t, d > 500*time.Millisecond && d <= time.Second, d)
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestHookChainOrderAndTrace(t *testing.T) {
	var order []string
	rec := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before-"+name)
				return ctx, km, d, nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after-"+name)
			},
		}
	}
	chain := NewHookChain(TraceHook(), rec("a"), nil, rec("b"))

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}}
	ctx, _, _, err := chain.BeforeHandle(context.Background(), "ticks", km, nil)
	require.NoError(t, err)
	chain.AfterHandle(ctx, "ticks", km, nil, nil)

	assert.Equal(t, "t-1", TraceID(ctx))
	assert.Equal(t, []string{"before-a", "before-b", "after-b", "after-a"}, order)
}

func TestHookChainRecoversPanic(t *testing.T) {
	var seen error
	chain := NewHookChain(
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, nil)

	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, seen)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

func TestNewProducerDefaults(t *testing.T) {
	p, err := NewProducer(ProducerConfig{Brokers: []string{"127.0.0.1:9092"}, RequiredAcks: -1, KeyedOrdering: true})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "gzip", p.comp)
	assert.Equal(t, time.Second, p.writer.BatchTimeout)
	assert.Equal(t, 100, p.writer.BatchSize)
	assert.Equal(t, int64(1<<20), p.writer.BatchBytes)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}
