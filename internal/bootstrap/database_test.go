package bootstrap

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-analysis-api/config"
)

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.DBConfig{
		Host: "db.internal", Port: 6432, User: "analysis", Password: "p@ss/word?", Name: "analysis", SSLMode: "require",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:6432", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word?", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, applicationName, u.Query().Get("application_name"))
}

func TestQueueConsumersSizesPool(t *testing.T) {
	cfg := &config.AppConfig{
		Services:       "http",
		AnalysisWorker: config.AnalysisWorkerConfig{Concurrency: 4},
		Delivery:       config.DeliveryConfig{Concurrency: 32},
	}
	assert.Zero(t, QueueConsumers(cfg))
	assert.Equal(t, basePoolSize, poolSize(QueueConsumers(cfg)))

	cfg.Services = "analysis-worker,delivery-runner"
	assert.Equal(t, 36, QueueConsumers(cfg))
	assert.Equal(t, 36+poolHeadroom, poolSize(QueueConsumers(cfg)))
}

func TestRedisClients(t *testing.T) {
	_, _, err := newDirectClient(config.RedisConfig{URI: " "})
	require.Error(t, err)

	client, addr, err := newDirectClient(config.RedisConfig{URI: "redis://:secret@cache:6380/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, "cache:6380", addr)

	_, _, err = newClusterClient(config.RedisConfig{ClusterNodes: []string{" ", ""}})
	require.Error(t, err)

	cluster, desc, err := newClusterClient(config.RedisConfig{ClusterNodes: []string{" a:6379", "b:6379 "}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cluster.Close() })
	assert.Equal(t, "cluster:a:6379,b:6379", desc)

	_, _, err = newSentinelClient(config.RedisConfig{})
	require.Error(t, err)
}
