package naming_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/bizzlechizzle/aupat/pkg/internal/naming"
)

const (
	locID = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
	subID = "6fa459ea-ee8a-4ca4-894e-db77e160355e"
	h1    = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	h2    = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "1b4e28ba-2fa-ba7816bf8f01.jpg", naming.FileName(locID, "", h1, ".JPG"))
	assert.Equal(t, "1b4e28ba-2fa-6fa459ea-ee8-ba7816bf8f01.jpg", naming.FileName(locID, subID, h1, "jpg"))
	assert.Equal(t, "1b4e28ba-2fa-ba7816bf8f01", naming.FileName(locID, "", h1, ""))
}

func TestFileNameDeterministic(t *testing.T) {
	a := naming.FileName(locID, "", h1, "jpg")
	b := naming.FileName(locID, "", h1, "jpg")
	assert.Equal(t, a, b)

	c := naming.FileName(locID, "", h2, "jpg")
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(c, naming.First12(locID)+"-"))
	assert.True(t, strings.HasPrefix(a, naming.First12(locID)+"-"))
}

func TestFolder(t *testing.T) {
	got := naming.Folder("mill", locID, "NY", "Factory", "img")
	assert.Equal(t, "ny-factory/mill-1b4e28ba-2fa/img-org-1b4e28ba-2fa/", got)
}

func TestFolderSegmentsAreCaseFolded(t *testing.T) {
	upper := naming.Folder("Cohoes Mill", locID, "NY", "Industrial", "IMG")
	lower := naming.Folder("cohoes mill", locID, "ny", "industrial", "img")

	assert.Equal(t, lower, upper)
	assert.Equal(t, "ny-industrial/cohoes-mill-1b4e28ba-2fa/img-org-1b4e28ba-2fa/", upper)
	assert.Equal(t, "unknown-unknown/", naming.Folder("", locID, " ", "", "doc")[:16])
}

func TestFolderCannotEscape(t *testing.T) {
	got := naming.Folder("../../etc", locID, "..", "a/b", "img")
	assert.NotContains(t, got, "..")
	assert.Equal(t, 3, strings.Count(got, "/"))
}

func TestPlace(t *testing.T) {
	p := naming.Place(naming.Location{ID: locID, ShortName: "mill", State: "ny", Type: "factory"}, "", "vid", h1, "MOV")

	assert.Equal(t, "ny-factory/mill-1b4e28ba-2fa/vid-org-1b4e28ba-2fa/", p.Folder)
	assert.Equal(t, "1b4e28ba-2fa-ba7816bf8f01.mov", p.Name)
	assert.Equal(t, p.Folder+p.Name, p.Path)
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, "jpeg", naming.NormalizeExt(".JPEG"))
	assert.Equal(t, "tar.gz", naming.NormalizeExt("..tar.gz"))
	assert.Equal(t, "", naming.NormalizeExt(""))
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "harmony-mill-no-3", naming.ShortName("Harmony Mill  No. 3"))
	assert.Equal(t, "location", naming.ShortName("!!!"))
	assert.LessOrEqual(t, len(naming.ShortName(strings.Repeat("abc ", 30))), 32)
}

func TestShortNameKeepsMultiByteRunesWhole(t *testing.T) {
	name := naming.ShortName(strings.Repeat("a", 31) + "é mill")
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, strings.Repeat("a", 31)+"é", name)

	cjk := naming.ShortName(strings.Repeat("磨坊", 20))
	assert.True(t, utf8.ValidString(cjk))
	assert.Equal(t, 32, utf8.RuneCountInString(cjk))
}
