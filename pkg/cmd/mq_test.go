package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

func TestPrintTopics(t *testing.T) {
	var buf bytes.Buffer

	printTopics(&buf, configs.Default())

	out := buf.String()
	assert.Contains(t, out, "Backend: gochannel")
	assert.Regexp(t, `aupat\.entity\.imported\s+on`, out)
	assert.Regexp(t, `aupat\.entity\.duplicate\s+off`, out)
	assert.Regexp(t, `aupat\.sync\.conflict\s+on`, out)
}
