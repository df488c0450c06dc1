package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVerificationMail(t *testing.T) {
	msg, err := buildVerificationMail("a@acme.com", "ACME <b>", "123456", 300*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "a@acme.com", msg.To)
	assert.Contains(t, msg.Text, "123456")
	assert.Contains(t, msg.Text, "5 minutos")
	assert.Contains(t, msg.HTML, "123456")
	// 公司名会被转义
	assert.Contains(t, msg.HTML, "ACME &lt;b&gt;")
	assert.NotContains(t, msg.HTML, "ACME <b>")
}
