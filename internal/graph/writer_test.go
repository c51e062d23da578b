package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDstHostID_InternalVsExternal(t *testing.T) {
	cases := []struct {
		ip   string
		port int
		want string
	}{
		{"192.168.1.5", 443, "host-192-168-1-5"},
		{"10.0.0.1", 22, "host-10-0-0-1"},
		{"172.16.0.1", 80, "host-172-16-0-1"},
		{"172.31.255.255", 80, "host-172-31-255-255"},
		{"172.32.0.1", 80, "ip:172.32.0.1:80"},
		{"8.8.8.8", 53, "ip:8.8.8.8:53"},
		{"1.1.1.1", 443, "ip:1.1.1.1:443"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, DeriveDstHostID(c.ip, c.port), "DeriveDstHostID(%q, %d)", c.ip, c.port)
	}
}
