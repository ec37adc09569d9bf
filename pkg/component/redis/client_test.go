package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/essay-qa/pkg/options/redis"
)

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	opts := options.NewOptions()
	opts.Host = mr.Host()
	opts.Port = port

	client, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Raw().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	mr.Close()

	opts := options.NewOptions()
	opts.Host = "127.0.0.1"
	opts.Port = port

	_, err := New(context.Background(), opts)
	assert.Error(t, err)
}

func TestNew_NilOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}
