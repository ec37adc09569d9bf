package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Name      string   `mapstructure:"name"`
	Endpoint  string   `mapstructure:"endpoint"`
	Tags      []string `mapstructure:"tags"`
	Completed bool     `mapstructure:"-"`
	invalid   error
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "name", o.Name, "name")
	fs.StringVar(&o.Endpoint, "endpoint", o.Endpoint, "endpoint")
	fs.StringSliceVar(&o.Tags, "tags", o.Tags, "tags")
}

func (o *testOptions) Complete() error {
	o.Completed = true
	return nil
}

func (o *testOptions) Validate() error { return o.invalid }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, a *App, args ...string) error {
	t.Helper()
	a.Command().SetArgs(args)
	return a.Command().ExecuteContext(context.Background())
}

func TestApp_ConfigFileFlagsAndEnv(t *testing.T) {
	t.Setenv("TEST_ENDPOINT_HOST", "db.internal")
	cfg := writeConfig(t, "name: from-file\nendpoint: http://${TEST_ENDPOINT_HOST}:8080\ntags: [a, b]\n")

	opts := &testOptions{Name: "default"}
	var got testOptions
	a := NewApp(
		WithName("test"),
		WithNoVersion(),
		WithEnvFiles(),
		WithOptions(opts),
		WithRunFunc(func(context.Context, []string) error {
			got = *opts
			return nil
		}),
	)

	require.NoError(t, execute(t, a, "--config", cfg, "--name", "from-flag", "--tags", "x"))
	assert.Equal(t, "from-flag", got.Name)
	assert.Equal(t, "http://db.internal:8080", got.Endpoint)
	assert.Equal(t, []string{"x"}, got.Tags)
	assert.True(t, got.Completed)
}

func TestApp_SubcommandSeesOptions(t *testing.T) {
	cfg := writeConfig(t, "name: from-file\n")

	opts := &testOptions{}
	var seen string
	sub := &cobra.Command{
		Use: "sub",
		RunE: func(*cobra.Command, []string) error {
			seen = opts.Name
			return nil
		},
	}
	a := NewApp(WithName("test"), WithNoVersion(), WithEnvFiles(), WithOptions(opts), WithCommands(sub))

	require.NoError(t, execute(t, a, "sub", "--config", cfg))
	assert.Equal(t, "from-file", seen)
}

func TestApp_ValidationFailure(t *testing.T) {
	invalid := errors.New("name is required")
	opts := &testOptions{invalid: invalid}
	ran := false
	a := NewApp(
		WithName("test"),
		WithNoVersion(),
		WithNoConfig(),
		WithEnvFiles(),
		WithSilence(),
		WithOptions(opts),
		WithRunFunc(func(context.Context, []string) error {
			ran = true
			return nil
		}),
	)

	err := execute(t, a)
	assert.ErrorIs(t, err, invalid)
	assert.False(t, ran)
}

func TestApp_DotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_DOTENV_ENDPOINT=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TEST_DOTENV_ENDPOINT") })
	cfg := writeConfig(t, "endpoint: ${TEST_DOTENV_ENDPOINT}\n")

	opts := &testOptions{}
	a := NewApp(WithName("test"), WithNoVersion(), WithEnvFiles(envFile, filepath.Join(t.TempDir(), "missing.env")), WithOptions(opts),
		WithRunFunc(func(context.Context, []string) error { return nil }))

	require.NoError(t, execute(t, a, "--config", cfg))
	assert.Equal(t, "from-dotenv", opts.Endpoint)
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "ESSAYQA", EnvPrefix("essayqa"))
	assert.Equal(t, "ESSAY_QA", EnvPrefix("essay-qa"))
}
