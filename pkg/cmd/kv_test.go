package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
)

func TestPrintIndex(t *testing.T) {
	var buf bytes.Buffer

	printIndex(&buf, []importer.Result{{
		Kind:        model.KindImage,
		Hash:        "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		EntityID:    "img-1",
		ArchivePath: "ny-industrial/cohoes-mill/img/a1b2c3d4e5f6.jpg",
	}})

	out := buf.String()
	assert.Contains(t, out, "img  a1b2c3d4e5f6  img-1  ny-industrial/cohoes-mill/img/a1b2c3d4e5f6.jpg")
	assert.NotContains(t, out, "0718293a")
	assert.Contains(t, out, "1 entries")
}
