package kafka

import (
	"Courier/internal/api/config"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestNewSaramaConfig(t *testing.T) {
	c := newSaramaConfig(config.KafkaConfig{
		Consumer: config.ConsumerConfig{SessionTimeout: 20, MaxProcessingTime: 5},
	}, "courier-notification")

	if c.ClientID != "courier-notification" {
		t.Fatalf("client id = %q", c.ClientID)
	}
	if id := newSaramaConfig(config.KafkaConfig{}, "notify").ClientID; id != "courier-notify" {
		t.Fatalf("prefixed client id = %q", id)
	}
	if c.Consumer.Offsets.AutoCommit.Enable {
		t.Fatal("auto commit must stay off, offsets are committed after persistence")
	}
	if c.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Fatal("new groups start from the oldest offset")
	}
	if c.Consumer.Group.Session.Timeout != 20*time.Second || c.Consumer.MaxProcessingTime != 5*time.Second {
		t.Fatalf("timeouts = %v / %v", c.Consumer.Group.Session.Timeout, c.Consumer.MaxProcessingTime)
	}
	// 未配置的项沿用 sarama 默认值
	if c.Consumer.Group.Heartbeat.Interval != sarama.NewConfig().Consumer.Group.Heartbeat.Interval {
		t.Fatalf("heartbeat = %v", c.Consumer.Group.Heartbeat.Interval)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}
