package configs

const redactedValue = "******"

// Redacted 返回隐藏密码、令牌与密钥后的副本，用于打印与调试.
func (c AppConfig) Redacted() AppConfig {
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}

	mask(&c.DB.Password)
	mask(&c.KV.Redis.Password)
	mask(&c.MQ.Password)
	mask(&c.MQ.NATS.JWT)
	mask(&c.MQ.NATS.NKey)
	mask(&c.S3.SecretAccessKey)
	mask(&c.Field.DeviceToken)

	if len(c.Auth.Devices) > 0 {
		devices := make(map[string]string, len(c.Auth.Devices))
		for id, token := range c.Auth.Devices {
			mask(&token)
			devices[id] = token
		}

		c.Auth.Devices = devices
	}

	return c
}
