package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0" // 随机端口
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestManager_StartAndServe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	m := NewManager(mux, testConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	resp, err := http.Get("http://" + m.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, m.IsRunning())
}

func TestManager_DoubleStartFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	assert.Error(t, m.Start())
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	addr := m.Addr()

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// 关闭后拒绝新连接
	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)

	// 幂等
	assert.NoError(t, m.Shutdown(context.Background()))
	// 关闭后不可再启动
	assert.Error(t, m.Start())
}

func TestManager_ListenFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "256.256.256.256:99999"
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Error(t, m.Start())
}
