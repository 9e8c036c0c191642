package provisioner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerName(t *testing.T) {
	cases := map[string]string{
		"pwn-heap":   "pwn-heap",
		"pwn-heap:3": "pwn-heap",
		"arn:aws:ecs:ap-northeast-1:123456789012:task-definition/web-sqli:7": "web-sqli",
	}

	for input, want := range cases {
		assert.Equal(t, want, containerName(input), "input %q", input)
	}
}
