package openai_tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageOverhead(t *testing.T) {
	perMessage, perName := messageOverhead("gpt-3.5-turbo-0301")
	assert.Equal(t, 4, perMessage)
	assert.Equal(t, -1, perName)

	perMessage, perName = messageOverhead("gpt-4o")
	assert.Equal(t, 3, perMessage)
	assert.Equal(t, 1, perName)
}
