package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  mode: test
inventory:
  store: mysql
  reserve_policy: optimistic
  fallback_retries: 5
redis:
  enabled: true
  op_ttl: 2h
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Inventory.Store)
	assert.Equal(t, "optimistic", cfg.Inventory.ReservePolicy)
	assert.Equal(t, 5, cfg.Inventory.FallbackRetries)
	assert.Equal(t, 2*time.Hour, cfg.Redis.OpTTL)

	// 未配置的键使用默认值
	assert.Equal(t, "order.events", cfg.RabbitMQ.OrderExchange)
	assert.Equal(t, "products", cfg.Mongo.Collection)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := writeConfig(t, "inventory:\n  store: mysql\n")
	t.Setenv("STOCKKEEPER_INVENTORY_STORE", "mongo")
	t.Setenv("STOCKKEEPER_REDIS_OP_TTL", "30m")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Inventory.Store)
	assert.Equal(t, 30*time.Minute, cfg.Redis.OpTTL)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"未知存储":        "inventory:\n  store: postgres\n",
		"未知策略":        "inventory:\n  reserve_policy: pessimistic\n",
		"重试次数为负":      "inventory:\n  fallback_retries: -1\n",
		"生产环境不能使用内存存储": "server:\n  mode: release\ninventory:\n  store: memory\n",
		"端口不合法":       "server:\n  port: 70000\n",
		"消费订单事件缺少幂等守卫": "rabbitmq:\n  enabled: true\nredis:\n  enabled: false\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestValidate_ConsumerWithGuard(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "rabbitmq:\n  enabled: true\nredis:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.True(t, cfg.Redis.Enabled)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 3306, User: "u", Password: "p", DBName: "shop",
		Charset: "utf8mb4", ParseTime: true, Loc: "Asia/Shanghai",
	}
	assert.Equal(t, "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true&loc=Asia%2FShanghai", d.DSN())
}
