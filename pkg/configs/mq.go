package configs

import (
	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeGoChannel MQType = "gochannel"
	MQTypeNATS      MQType = "nats"

	DefaultMQURL              = "nats://localhost:4222"
	DefaultMaxReconnects      = 5            // 默认最大重连次数.
	DefaultReconnectWait      = 5            // 默认重连等待时间（秒）.
	DefaultMQClientID         = "aupat-node" // 默认客户端ID
	DefaultPingInterval       = 20           // 默认ping间隔 (秒)
	DefaultBufferSize         = 32768        // 默认重连缓冲区大小 (32KB)
	DefaultGoChannelBuffer    = 256          // 进程内通道缓冲
	DefaultNATSSubjectPrefix  = "aupat."
	DefaultNATSDurablePrefix  = "aupat-durable"
	DefaultNATSJetStreamState = false
)

// MQConfig 事件总线配置. gochannel 为进程内实现，nats 用于把事件投递到外部消费者.
type MQConfig struct {
	Type          MQType          `mapstructure:"type"           rule:"oneof=gochannel nats"`
	URL           string          `mapstructure:"url"`
	User          string          `mapstructure:"user"`
	Password      string          `mapstructure:"password"`
	ClientID      string          `mapstructure:"client_id"`
	MaxReconnects int             `mapstructure:"max_reconnects" rule:"min=0,max=100"`
	ReconnectWait int             `mapstructure:"reconnect_wait" rule:"min=1,max=300"`
	PingInterval  int             `mapstructure:"ping_interval"  rule:"min=1,max=300"`
	BufferSize    int             `mapstructure:"buffer_size"    rule:"min=1024,max=1048576"`
	NATS          MQNATSConfig    `mapstructure:"nats"`
	GoChannel     GoChannelConfig `mapstructure:"gochannel"`
}

// MQNATSConfig NATS MQ 配置.
type MQNATSConfig struct {
	JetStreamEnabled bool     `mapstructure:"jetstream_enabled"`
	AutoProvision    bool     `mapstructure:"auto_provision"`
	TrackMsgID       bool     `mapstructure:"track_msg_id"`
	AckAsync         bool     `mapstructure:"ack_async"`
	DurablePrefix    string   `mapstructure:"durable_prefix"`
	SubjectPrefix    string   `mapstructure:"subject_prefix"`
	JWT              string   `mapstructure:"jwt"`
	NKey             string   `mapstructure:"nkey"`
	ClusterURLs      []string `mapstructure:"cluster_urls"`
}

// GoChannelConfig 进程内 MQ 配置.
type GoChannelConfig struct {
	OutputBuffer int64 `mapstructure:"output_buffer" rule:"min=0"`
	Persistent   bool  `mapstructure:"persistent"`
}

// GetMQType 返回当前配置的消息队列类型.
func (c *MQConfig) GetMQType() MQType {
	return c.Type
}

// setDefaults 设置MQ配置的默认值.
func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)

	v.SetDefault("mq.url", DefaultMQURL)
	v.SetDefault("mq.user", "")
	v.SetDefault("mq.password", "")
	v.SetDefault("mq.client_id", DefaultMQClientID)
	v.SetDefault("mq.max_reconnects", DefaultMaxReconnects)
	v.SetDefault("mq.reconnect_wait", DefaultReconnectWait)
	v.SetDefault("mq.ping_interval", DefaultPingInterval)
	v.SetDefault("mq.buffer_size", DefaultBufferSize)

	v.SetDefault("mq.nats.jetstream_enabled", DefaultNATSJetStreamState)
	v.SetDefault("mq.nats.auto_provision", true)
	v.SetDefault("mq.nats.track_msg_id", true)
	v.SetDefault("mq.nats.ack_async", false)
	v.SetDefault("mq.nats.durable_prefix", DefaultNATSDurablePrefix)
	v.SetDefault("mq.nats.subject_prefix", DefaultNATSSubjectPrefix)
	v.SetDefault("mq.nats.jwt", "")
	v.SetDefault("mq.nats.nkey", "")
	v.SetDefault("mq.nats.cluster_urls", []string{})

	v.SetDefault("mq.gochannel.output_buffer", DefaultGoChannelBuffer)
	v.SetDefault("mq.gochannel.persistent", false)
}
