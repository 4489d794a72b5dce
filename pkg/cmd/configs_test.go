package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

func TestPrintPaths(t *testing.T) {
	cfg := configs.Default()
	cfg.Archive.Root = "/srv/archive"
	cfg.Archive.StagingDir = ".staging"
	cfg.DB.Database = "/srv/archive/aupat.db"

	var buf bytes.Buffer
	printPaths(&buf, "", cfg)

	out := buf.String()
	assert.Contains(t, out, "(none, defaults and env)")
	assert.Contains(t, out, "archive:  /srv/archive")
	assert.Contains(t, out, "staging:  /srv/archive/.staging")
	assert.Contains(t, out, "db:       /srv/archive/aupat.db")
}
