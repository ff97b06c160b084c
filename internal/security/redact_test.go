package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"password", "Password", "passwd", "admin_pass", "api_key", "API-KEY", "token", "private_key", "credentials"} {
		assert.True(t, IsSensitive(key), key)
	}
	for _, key := range []string{"node", "nodes", "cluster_name", "wait", "force"} {
		assert.False(t, IsSensitive(key), key)
	}
}

func TestRedactParams(t *testing.T) {
	params := map[string]any{
		"cluster_name": "prod",
		"password":     "hunter2",
		"nodes": []any{
			map[string]any{"name": "node1", "token": "abc"},
			"node2",
		},
		"auth": map[string]any{"user": "hacluster", "passwd": "x"},
	}

	got := RedactParams(params)

	assert.Equal(t, map[string]any{
		"cluster_name": "prod",
		"password":     Mask,
		"nodes": []any{
			map[string]any{"name": "node1", "token": Mask},
			"node2",
		},
		"auth": map[string]any{"user": "hacluster", "passwd": Mask},
	}, got)

	assert.Equal(t, "hunter2", params["password"], "input must not be modified")
	assert.Nil(t, RedactParams(nil))
}

func TestRedactArgv(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "nothing to hide",
			in:   []string{"/usr/sbin/cluster-node", "add", "node3"},
			want: []string{"/usr/sbin/cluster-node", "add", "node3"},
		},
		{
			name: "flag with value",
			in:   []string{"cluster-auth", "--password=secret", "-u", "hacluster"},
			want: []string{"cluster-auth", "--password=***", "-u", "hacluster"},
		},
		{
			name: "flag followed by value",
			in:   []string{"cluster-auth", "--token", "abc", "node1"},
			want: []string{"cluster-auth", "--token", "***", "node1"},
		},
		{
			name: "key value argument",
			in:   []string{"setup", "passwd=x", "name=prod"},
			want: []string{"setup", "passwd=***", "name=prod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactArgv(tt.in))
		})
	}
}
