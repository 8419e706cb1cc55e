package kafka

import (
	"Courier/internal/api/config"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const clientIDPrefix = "courier-"

// newSaramaConfig 通知消费组的客户端配置
// 位点由 processBatch 成功落库后手动提交, 新消费组从最早位点开始补齐
func newSaramaConfig(kafkaCfg config.KafkaConfig, groupID string) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = groupID
	if !strings.HasPrefix(groupID, clientIDPrefix) {
		c.ClientID = clientIDPrefix + groupID
	}

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	consumer := kafkaCfg.Consumer
	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.Initial = sarama.OffsetOldest
	c.Consumer.Offsets.AutoCommit.Enable = false
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	c.Consumer.Group.Session.Timeout = seconds(consumer.SessionTimeout, c.Consumer.Group.Session.Timeout)
	c.Consumer.Group.Heartbeat.Interval = seconds(consumer.HeartbeatInterval, c.Consumer.Group.Heartbeat.Interval)
	c.Consumer.Group.Rebalance.Timeout = seconds(consumer.RebalanceTimeout, c.Consumer.Group.Rebalance.Timeout)
	c.Consumer.MaxProcessingTime = seconds(consumer.MaxProcessingTime, c.Consumer.MaxProcessingTime)

	return c
}

// seconds 未配置时保留 sarama 默认值
func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
