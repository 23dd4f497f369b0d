package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"order_id":"PKG_1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "isp", zap.NewNop())
	err := pub.Publish(context.Background(), EventPaymentCompleted, "PKG_1", []byte(`{"order_id":"PKG_1"}`))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "isp", zap.NewNop())
	err := pub.Publish(context.Background(), EventPaymentFailed, "PKG_2", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "isp.payment.failed")
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_Topic(t *testing.T) {
	pub := &KafkaPublisher{prefix: "isp"}
	assert.Equal(t, "isp.voucher.activated", pub.Topic(EventVoucherActivated))

	bare := &KafkaPublisher{}
	assert.Equal(t, "session.terminated", bare.Topic(EventSessionTerminated))
}

func TestLogPublisher(t *testing.T) {
	pub := NewLogPublisher(zap.NewNop())
	assert.NoError(t, pub.Publish(context.Background(), EventPaymentCompleted, "k", []byte(`{}`)))
	assert.NoError(t, pub.Close())
}
