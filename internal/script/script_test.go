package script

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/sandbox"
)

func newRuntime(t *testing.T) *sandbox.Runtime {
	t.Helper()
	rt, err := sandbox.New()
	require.NoError(t, err)
	return rt
}

func TestStrip(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"export default { a: 1 };", "{ a: 1 }"},
		{"  export   default {}\n;;\n", "{}"},
		{"{ b: 2 }", "{ b: 2 }"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Strip(tt.source))
	}
}

func TestEvaluateEmptyScript(t *testing.T) {
	rt := newRuntime(t)

	def, err := Evaluate(rt, "  ")
	require.NoError(t, err)
	assert.True(t, def.Empty())
	require.NotNil(t, def.Options)
	assert.Empty(t, def.Options.Keys())
}

func TestEvaluateFullDefinition(t *testing.T) {
	rt := newRuntime(t)

	def, err := Evaluate(rt, `export default {
		name: "Counter",
		props: { start: { type: Number, default: 1, required: true }, label: String, tags: [String, Array] },
		data() { return { count: this.start } },
		computed: {
			double() { return this.count * 2 },
			half: { get() { return this.count / 2 }, set(v) { this.count = v * 2 } },
		},
		methods: { inc() { this.count++ } },
		mounted() {},
		beforeDestroy() {},
	};`)
	require.NoError(t, err)

	assert.Equal(t, "Counter", def.Name)
	require.NotNil(t, def.Data)

	require.Len(t, def.Props, 3)
	assert.Equal(t, "start", def.Props[0].Name)
	assert.Equal(t, "Number", def.Props[0].Type)
	assert.True(t, def.Props[0].Required)
	require.NotNil(t, def.Props[0].Default)
	assert.Equal(t, int64(1), def.Props[0].Default.ToInteger())
	assert.Equal(t, PropSpec{Name: "label", Type: "String"}, def.Props[1])
	assert.Equal(t, "String|Array", def.Props[2].Type)

	require.Len(t, def.Computed, 2)
	assert.Equal(t, "double", def.Computed[0].Name)
	assert.Nil(t, def.Computed[0].Set)
	assert.NotNil(t, def.Computed[1].Set)

	require.Len(t, def.Methods, 1)
	assert.Equal(t, "inc", def.Methods[0].Name)

	assert.NotNil(t, def.Hook("mounted"))
	assert.NotNil(t, def.Hook("beforeDestroy"))
	assert.Nil(t, def.Hook("created"))
	assert.False(t, def.Empty())
}

func TestEvaluateNormalizesPlainData(t *testing.T) {
	rt := newRuntime(t)

	def, err := Evaluate(rt, `export default { data: { msg: "hi" } }`)
	require.NoError(t, err)
	require.NotNil(t, def.Data)

	v, err := def.Data(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, "hi", v.ToObject(rt.VM()).Get("msg").String())

	// The options object now carries the factory too.
	_, ok := goja.AssertFunction(def.Options.Get("data"))
	assert.True(t, ok)
}

func TestEvaluateKeepsDataFunction(t *testing.T) {
	rt := newRuntime(t)

	def, err := Evaluate(rt, `export default { data: function () { return { n: 41 + 1 } } }`)
	require.NoError(t, err)

	v, err := def.Data(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.ToObject(rt.VM()).Get("n").ToInteger())
}

func TestEvaluatePropsArray(t *testing.T) {
	rt := newRuntime(t)

	def, err := Evaluate(rt, `export default { props: ["title", "count"] }`)
	require.NoError(t, err)
	assert.Equal(t, []PropSpec{{Name: "title"}, {Name: "count"}}, def.Props)
}

func TestEvaluateFailures(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"syntax error", `export default { data() { return { }`},
		{"not an object", `export default 42`},
		{"two statements", `export default {}; console.log("x")`},
		{"function call", `export default (function () { return {} })()`},
		{"method not a function", `export default { methods: { go: 1 } }`},
		{"hook not a function", `export default { created: "soon" }`},
		{"computed without getter", `export default { computed: { x: { set(v) {} } } }`},
		{"runtime error", `export default { a: missing.value }`},
		{"blocked global", `export default { a: eval("1") }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Evaluate(newRuntime(t), tt.source)
			assert.Nil(t, def)
			assert.ErrorIs(t, err, errors.ErrScriptEvaluation)
		})
	}
}
