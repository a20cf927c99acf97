package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvProjectID, "my-project")
	t.Setenv(EnvBucket, "my-bucket")
	t.Setenv(EnvBuildID, "")
	t.Setenv(EnvDatasetID, "")
	t.Setenv(EnvEUDatasetID, "")

	env, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Env{
		ProjectID:   "my-project",
		Bucket:      "my-bucket",
		Folder:      DefaultFolder,
		DatasetID:   DefaultDatasetID,
		EUDatasetID: DefaultEUDatasetID,
	}, env)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvProjectID, "p")
	t.Setenv(EnvBucket, "b")
	t.Setenv(EnvBuildID, "12345")
	t.Setenv(EnvDatasetID, "ds")
	t.Setenv(EnvEUDatasetID, "ds_eu")

	env, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "12345", env.Folder)
	assert.Equal(t, "ds", env.DatasetID)
	assert.Equal(t, "ds_eu", env.EUDatasetID)
}

func TestLoad_Placeholders(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{name: "nothing set", vars: map[string]string{}, want: EnvProjectID},
		{name: "placeholder project", vars: map[string]string{EnvProjectID: PlaceholderProjectID, EnvBucket: "b"}, want: EnvProjectID},
		{name: "placeholder bucket", vars: map[string]string{EnvProjectID: "p", EnvBucket: PlaceholderBucket}, want: EnvBucket},
		{name: "same datasets", vars: map[string]string{EnvProjectID: "p", EnvBucket: "b", EnvDatasetID: "x", EnvEUDatasetID: "x"}, want: "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := tt.vars[k]
				return v, ok
			}
			_, err := Load(lookup)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_NotConfiguredSentinel(t *testing.T) {
	_, err := Load(func(string) (string, bool) { return "", false })
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestValidate_FolderAndDatasets(t *testing.T) {
	valid := Env{
		ProjectID:   "p",
		Bucket:      "b",
		Folder:      DefaultFolder,
		DatasetID:   DefaultDatasetID,
		EUDatasetID: DefaultEUDatasetID,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Env)
		want   string
	}{
		{name: "empty folder", mutate: func(e *Env) { e.Folder = "" }, want: EnvBuildID},
		{name: "blank folder", mutate: func(e *Env) { e.Folder = "  " }, want: EnvBuildID},
		{name: "root folder", mutate: func(e *Env) { e.Folder = "//" }, want: EnvBuildID},
		{name: "blank dataset", mutate: func(e *Env) { e.DatasetID = " " }, want: EnvDatasetID},
		{name: "blank eu dataset", mutate: func(e *Env) { e.EUDatasetID = "" }, want: EnvEUDatasetID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid
			tt.mutate(&env)
			err := env.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConfigured)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
