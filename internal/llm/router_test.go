package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickPrefersGateway(t *testing.T) {
	r := NewNodeRouter("http://gateway:8000", []string{"http://node1:11434"}, nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "http://gateway:8000", r.Pick())
	}
}

func TestPickRoundRobinsNodes(t *testing.T) {
	nodes := []string{"http://a:11434", "http://b:11434"}
	r := NewNodeRouter("", nodes, nil)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[r.Pick()]++
	}
	assert.Equal(t, 2, seen[nodes[0]])
	assert.Equal(t, 2, seen[nodes[1]])
}

func TestPickSkipsCooledDownNode(t *testing.T) {
	nodes := []string{"http://a:11434", "http://b:11434"}
	r := NewNodeRouter("", nodes, nil)
	r.MarkFailed(nodes[0])

	for i := 0; i < 4; i++ {
		assert.Equal(t, nodes[1], r.Pick())
	}
}

func TestPickReturnsSomethingWhenAllCoolingDown(t *testing.T) {
	nodes := []string{"http://a:11434"}
	r := NewNodeRouter("", nodes, nil)
	r.MarkFailed(nodes[0])
	assert.Equal(t, nodes[0], r.Pick())
}

func TestMarkFailedIgnoresGateway(t *testing.T) {
	r := NewNodeRouter("http://gateway:8000", []string{"http://a:11434"}, nil)
	r.MarkFailed("http://gateway:8000")
	assert.Equal(t, "http://gateway:8000", r.Pick())
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "none", maskKey(""))
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "sk-a***wxyz", maskKey("sk-abcdefgh-wxyz"))
}
