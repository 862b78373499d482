package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_clientIP(t *testing.T) {
	tcases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		expected   string
	}{
		{
			name:       "forwarded single hop",
			remoteAddr: "127.0.0.1:52100",
			forwarded:  "10.0.0.1",
			expected:   "10.0.0.1",
		},
		{
			name:       "forwarded chain keeps the first hop",
			remoteAddr: "127.0.0.1:52100",
			forwarded:  "10.0.0.1, 192.168.0.5, 172.16.0.9",
			expected:   "10.0.0.1",
		},
		{
			name:       "forwarded with surrounding whitespace",
			remoteAddr: "127.0.0.1:52100",
			forwarded:  "  10.0.0.1 , 192.168.0.5",
			expected:   "10.0.0.1",
		},
		{
			name:       "remote addr fallback strips the port",
			remoteAddr: "192.0.2.7:41234",
			expected:   "192.0.2.7",
		},
		{
			name:       "remote addr without a port is used as is",
			remoteAddr: "192.0.2.7",
			expected:   "192.0.2.7",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}

			assert.Equal(t, tc.expected, clientIP(r), "expected derived identity to match")
		})
	}
}
