package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
[aws]
region = "eu-west-1"
profile = "ops"

[environments.staging]
account = "589470546847"
region = "eu-west-1"

[environments.production]
account = "111122223333"
region = "us-east-1"

[scan]
parallel = true
timeout = "2m"
skip = ["apigateway"]
beanstalk_namespace = "aws:elb:listener:443"
apprunner_all_validation_records = true

[output]
formats = ["json", "table"]

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "certusage"

[otel.traces]
enabled = true
sample_rate = 1.0

[otel.metrics]
enabled = true

[metrics]
pushgateway = "http://pushgateway:9091"
job = "cert-audit"

[history]
path = "/var/lib/certusage/history.db"

[log]
level = "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/var/lib/certusage/history.db", cfg.History.Path)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "ops", cfg.AWS.Profile)
	assert.Len(t, cfg.Environments, 2)
	assert.Equal(t, "111122223333", cfg.Environments["production"].Account)
	assert.True(t, cfg.Scan.Parallel)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout)
	assert.Equal(t, []string{"apigateway"}, cfg.Scan.Skip)
	assert.Equal(t, "aws:elb:listener:443", cfg.Scan.BeanstalkNamespace)
	assert.True(t, cfg.Scan.AppRunnerAllValidationRecords)
	assert.Equal(t, []string{"json", "table"}, cfg.Output.Formats)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.Pushgateway)
	assert.Equal(t, "cert-audit", cfg.Metrics.Job)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	content := `
[aws]
region = "eu-west-1"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultEnvironments(), cfg.Environments)
	assert.Equal(t, DefaultBeanstalkNamespace, cfg.Scan.BeanstalkNamespace)
	assert.False(t, cfg.Scan.AppRunnerAllValidationRecords)
	assert.Equal(t, time.Duration(0), cfg.Scan.Timeout)
	assert.Equal(t, []string{"text"}, cfg.Output.Formats)
	assert.Equal(t, "certusage", cfg.OTEL.ServiceName)
	assert.Equal(t, "certusage", cfg.Metrics.Job)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentsReplaceBuiltins(t *testing.T) {
	content := `
[environments.production]
account = "111122223333"
region = "us-east-1"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Len(t, cfg.Environments, 1)
	assert.NotContains(t, cfg.Environments, "staging")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[aws
region = "eu-west-1"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := `
[scan]
timeout = "not-a-duration"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse timeout")
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Contains(t, cfg.Environments, "staging")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "short account",
			mutate:  func(c *Config) { c.Environments["staging"] = EnvironmentConfig{Account: "1234", Region: "eu-west-1"} },
			wantErr: "Account",
		},
		{
			name:    "non numeric account",
			mutate:  func(c *Config) { c.Environments["staging"] = EnvironmentConfig{Account: "58947054684x", Region: "eu-west-1"} },
			wantErr: "Account",
		},
		{
			name:    "missing region",
			mutate:  func(c *Config) { c.Environments["staging"] = EnvironmentConfig{Account: "589470546847"} },
			wantErr: "Region",
		},
		{
			name:    "output format",
			mutate:  func(c *Config) { c.Output.Formats = []string{"json", "yaml"} },
			wantErr: "Format",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "Level",
		},
		{
			name:    "sample rate",
			mutate:  func(c *Config) { c.OTEL.Traces.SampleRate = 1.5 },
			wantErr: "SampleRate",
		},
		{
			name:    "pushgateway url",
			mutate:  func(c *Config) { c.Metrics.Pushgateway = "not a url" },
			wantErr: "Pushgateway",
		},
		{
			name:    "unknown skip kind",
			mutate:  func(c *Config) { c.Scan.Skip = []string{"s3"} },
			wantErr: "unknown resource kind",
		},
		{
			name:    "unknown only kind",
			mutate:  func(c *Config) { c.Scan.Only = []string{"rds"} },
			wantErr: "unknown resource kind",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Scan.Timeout = -time.Second },
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Profiles(t *testing.T) {
	cfg := Default()

	profiles := cfg.Profiles()

	require.Contains(t, profiles, "staging")
	p := profiles["staging"]
	assert.Equal(t, "staging", p.Name)
	assert.Equal(t, "589470546847", p.Account)
	assert.Equal(t, "eu-west-1", p.Region)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}
