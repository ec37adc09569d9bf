package llm

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOptions_AddFlagsWithPrefix(t *testing.T) {
	opts := NewChatOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs, "chat")

	require.NoError(t, fs.Parse([]string{"--chat.model=llama3", "--chat.provider=ollama"}))
	assert.Equal(t, "llama3", opts.Model)
	assert.Equal(t, "ollama", opts.Provider)
	assert.NotNil(t, fs.Lookup("chat.api-key"))
}

func TestProviderOptions_Validate(t *testing.T) {
	assert.Empty(t, NewEmbeddingOptions().Validate())

	opts := &ProviderOptions{MaxRetries: -1}
	assert.Len(t, opts.Validate(), 4)

	var nilOpts *ProviderOptions
	assert.Nil(t, nilOpts.Validate())
}

func TestProviderOptions_ToConfigMap(t *testing.T) {
	opts := NewEmbeddingOptions()
	opts.APIKey = "k"
	m := opts.ToConfigMap()

	assert.Equal(t, "text-embedding-3-small", m["embed_model"])
	assert.Equal(t, 1536, m["embed_dimensions"])
	assert.Equal(t, 120*time.Second, m["timeout"])
	_, hasBase := m["base_url"]
	assert.False(t, hasBase)
}
