//go:build property
// +build property

package sanitizer

import (
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomCase flips the case of letters according to mask bits.
func randomCase(s string, mask uint64) string {
	var b strings.Builder
	for i, r := range s {
		if mask&(1<<(uint(i)%64)) != 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func TestSanitizerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	s := New(DefaultPolicy())

	tag := gen.OneConstOf("script", "iframe", "svg", "canvas", "video", "audio")

	properties.Property("blocked tags rejected in any case", prop.ForAll(
		func(name string, mask uint64, closing bool) bool {
			form := "<" + randomCase(name, mask) + ">"
			if closing {
				form = "</" + randomCase(name, mask) + ">"
			}
			return s.CheckTags("<div>"+form+"</div>") != nil
		},
		tag, gen.UInt64(), gen.Bool(),
	))

	properties.Property("v-html rejected in any case", prop.ForAll(
		func(mask uint64) bool {
			return s.CheckDirectives(`<div `+randomCase("v-html", mask)+`="x"></div>`) != nil
		},
		gen.UInt64(),
	))

	properties.Property("plain text content is admitted", prop.ForAll(
		func(text string) bool {
			return s.Check("<div>"+text+"</div>") == nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
