package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_URL", "http://directory.internal:9000")

	in := "base_url: ${TEST_UPSTREAM_URL:http://localhost:9000}\nport: ${TEST_MISSING_PORT:8080}\n"
	out := expandEnv(in)

	require.Contains(t, out, "http://directory.internal:9000")
	require.Contains(t, out, "port: 8080")
}

func TestExpandEnvKeepsUnknownWithoutDefault(t *testing.T) {
	out := expandEnv("secret: ${TEST_UNSET_SECRET}")
	// 无默认值且未定义时原样保留，便于暴露缺失配置
	require.Equal(t, "secret: ${TEST_UNSET_SECRET}", out)
}
