package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		want   string
	}{
		{name: "non-empty secret", secret: Secret("super-secret-password"), want: "***"},
		{name: "empty secret", secret: Secret(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.secret.String())
			assert.Equal(t, "value: "+tt.want, fmt.Sprintf("value: %s", tt.secret))
			assert.Equal(t, "value: "+tt.want, fmt.Sprintf("value: %v", tt.secret))
		})
	}
}

func TestSecretJSONMarshal(t *testing.T) {
	provider := ProviderConfig{
		ID:           "github",
		ClientID:     "client-id",
		ClientSecret: Secret("gh-client-secret"),
	}

	data, err := json.Marshal(provider)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "gh-client-secret")
	assert.Contains(t, string(data), `"clientSecret":"***"`)
	assert.Contains(t, string(data), `"clientId":"client-id"`)
}
