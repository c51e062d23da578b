package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

func TestIsIPv4(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"10.0.0.1", true},
		{"255.255.255.255", true},
		{"::1", false},
		{"2001:db8::1", false},
		{"not-an-ip", false},
		{"example.com", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, IsIPv4(c.in), "IsIPv4(%q)", c.in)
	}
}

func TestEnrich_NeverMutatesInput(t *testing.T) {
	ev := models.Event{ID: "evt-1", Type: "connect", Source: "agent", Timestamp: 1000}

	out := Enrich(ev, "prod", true, "10.0.0.42")

	require.Equal(t, "evt-1", ev.ID, "original event must be untouched")
	assert.Equal(t, ev, out.Event, "embedded event must be a copy of the input")
}

func TestEnrich_FakeRDNSOnlyForValidIPv4(t *testing.T) {
	out := Enrich(models.Event{}, "prod", true, "10.0.0.42")
	require.NotNil(t, out.Context.Rdns)
	assert.Equal(t, "host-42.local", *out.Context.Rdns)

	out = Enrich(models.Event{}, "prod", true, "not-an-ip")
	assert.Nil(t, out.Context.Rdns)

	out = Enrich(models.Event{}, "prod", false, "10.0.0.42")
	assert.Nil(t, out.Context.Rdns, "fakeRDNS=false must never populate rdns")

	out = Enrich(models.Event{}, "prod", true, "")
	assert.Nil(t, out.Context.Rdns, "empty dstIP must never populate rdns")
}

func TestValidateEnriched(t *testing.T) {
	assert.True(t, ValidateEnriched(models.EnrichedEvent{Context: models.Context{Env: "prod"}}))
	assert.False(t, ValidateEnriched(models.EnrichedEvent{}))
}
