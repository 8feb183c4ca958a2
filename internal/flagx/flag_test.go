package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	owned := Set{"a": true, "s": true, "w": false, "config": true}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate value",
			args: []string{"-a", ":8080", "-x", "1"},
			want: []string{"-a", ":8080"},
		},
		{
			name: "inline value with double dash",
			args: []string{"--config=alt.json", "-x", "1"},
			want: []string{"--config=alt.json"},
		},
		{
			name: "switch does not eat the next positional",
			args: []string{"-w", "positional", "-s", "k"},
			want: []string{"-w", "-s", "k"},
		},
		{
			name: "value missing before next flag",
			args: []string{"-a", "-s", "k"},
			want: []string{"-a", "-s", "k"},
		},
		{
			name: "foreign test flags ignored",
			args: []string{"-test.v", "-test.run=X", "-s", "k"},
			want: []string{"-s", "k"},
		},
		{
			name: "terminators and positionals ignored",
			args: []string{"--", "-", "file"},
			want: []string{},
		},
		{
			name: "empty",
			args: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, owned))
		})
	}
}

func TestConfigPath(t *testing.T) {
	env := func(v string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			if k == ConfigEnv && v != "" {
				return v, true
			}
			return "", false
		}
	}

	tests := []struct {
		name string
		args []string
		env  string
		want string
	}{
		{name: "short flag", args: []string{"-c", "a.json", "-s", "k"}, want: "a.json"},
		{name: "long flag inline", args: []string{"-config=b.json"}, want: "b.json"},
		{name: "flag beats env", args: []string{"-c", "a.json"}, env: "env.json", want: "a.json"},
		{name: "env fallback", args: []string{"-s", "k"}, env: " env.json ", want: "env.json"},
		{name: "nothing", args: []string{"-s", "k"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args, env(tt.env)))
		})
	}

	assert.Equal(t, "x.json", ConfigPath([]string{"-c", "x.json"}, nil))
}
