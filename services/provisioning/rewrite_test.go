package provisioning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteSubscriptionURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		publicBase string
		want       string
	}{
		{
			name:       "empty base passes through",
			raw:        "https://10.0.0.2:2053/sub/abc123",
			publicBase: "",
			want:       "https://10.0.0.2:2053/sub/abc123",
		},
		{
			name:       "token preserved under new base",
			raw:        "https://10.0.0.2:2053/sub/abc123",
			publicBase: "https://vpn.example.com",
			want:       "https://vpn.example.com/sub/abc123",
		},
		{
			name:       "base with path and trailing slash",
			raw:        "http://panel.internal/xyz/sub/tok-9",
			publicBase: "https://vpn.example.com/v2/",
			want:       "https://vpn.example.com/v2/sub/tok-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RewriteSubscriptionURL(tt.raw, tt.publicBase)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteSubscriptionURL_NoToken(t *testing.T) {
	_, err := RewriteSubscriptionURL("https://panel.internal", "https://vpn.example.com")
	require.Error(t, err)
}

func TestAccountName_Deterministic(t *testing.T) {
	require.Equal(t, "123_M1_sub42", AccountName(123, "M1", "sub42"))
	require.Equal(t, AccountName(5, "M3", "s"), AccountName(5, "M3", "s"))
}
