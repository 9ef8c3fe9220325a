package configendpoint

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/elastipool/node"
)

func TestParseConfigPayload_Fidelity(t *testing.T) {
	body := "3\nfoo.example|10.0.0.1|11211 bar.example|10.0.0.2|11211\r\n"

	cfg, err := parseConfigPayload([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), cfg.Version)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, node.NewEndpoint("foo.example", "10.0.0.1", 11211), cfg.Nodes[0])
	assert.Equal(t, node.NewEndpoint("bar.example", "10.0.0.2", 11211), cfg.Nodes[1])
}

func TestParseNodeToken_PrefersIPOverHostname(t *testing.T) {
	ep, err := parseNodeToken("node-a.cfg.cache.example|10.1.2.3|11211")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", ep.ResolvedIP)
	assert.Equal(t, "node-a.cfg.cache.example", ep.Host)
}

func TestParseNodeToken_MissingHostAndIP(t *testing.T) {
	_, err := parseNodeToken("||11211")
	assert.Error(t, err)
}

func TestParseConfigPayload_MalformedToken(t *testing.T) {
	_, err := parseConfigPayload([]byte("1\nnot-enough-fields\r\n"))
	assert.Error(t, err)
}

func TestParseConfigPayload_MalformedVersion(t *testing.T) {
	_, err := parseConfigPayload([]byte("notanumber\na|10.0.0.1|11211\r\n"))
	assert.Error(t, err)
}

func TestReadClusterConfig_FullWireFormat(t *testing.T) {
	body := "7\na.example|10.0.0.1|11211 b.example|10.0.0.2|11211"
	wire := "CONFIG cluster 0 " + strconv.Itoa(len(body)) + "\r\n" + body + "\r\nEND\r\n"

	cfg, err := readClusterConfig(strings.NewReader(wire))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.Version)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "10.0.0.1", cfg.Nodes[0].ResolvedIP)
	assert.Equal(t, "10.0.0.2", cfg.Nodes[1].ResolvedIP)
}

