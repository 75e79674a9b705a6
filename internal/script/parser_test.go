package script

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScript = `
SET x = 1
WAIT 0
RECORD x
`

func mustParse(t *testing.T, text string) *Script {
	t.Helper()
	s, err := Parse("test.atoms", text, DefaultGrammar())
	require.NoError(t, err)
	return s
}

func kinds(s *Script) []Kind {
	out := make([]Kind, 0, len(s.Commands))
	for _, cmd := range s.Commands {
		if cmd.Kind == KindNoOp {
			continue
		}
		out = append(out, cmd.Kind)
	}
	return out
}

func TestParse_MinimalScript(t *testing.T) {
	s := mustParse(t, minimalScript)

	require.Equal(t, []Kind{KindAssignment, KindWait, KindRecord}, kinds(s))
	assert.Empty(t, s.Instruments)

	var set, rec *Command
	for i := range s.Commands {
		switch s.Commands[i].Kind {
		case KindAssignment:
			set = &s.Commands[i]
		case KindRecord:
			rec = &s.Commands[i]
		}
	}
	require.NotNil(t, set)
	require.NotNil(t, rec)
	assert.Equal(t, "x", set.Name)
	assert.Equal(t, 2, set.Line)
	assert.Equal(t, "x", rec.Name)
	assert.Equal(t, 4, rec.Line)
}

func TestParse_IsDeterministic(t *testing.T) {
	text := `
INST dmm sim "0"
SET x = 2 * 3
IF (x > 4)
  QRY dmm "MEAS:VOLT:DC?" -> v
ELSE
  RECORD x
ENDIF
LOOP 3
  WAIT 10ms
ENDLOOP
`
	first := mustParse(t, text)
	second := mustParse(t, text)

	require.Equal(t, len(first.Commands), len(second.Commands))
	for i := range first.Commands {
		a, b := first.Commands[i], second.Commands[i]
		assert.Equal(t, a.Kind, b.Kind, "command %d", i)
		assert.Equal(t, a.Line, b.Line, "command %d", i)
		assert.Equal(t, a.Target, b.Target, "command %d", i)
		assert.Equal(t, a.Alias, b.Alias, "command %d", i)
		assert.Equal(t, a.Name, b.Name, "command %d", i)
		if a.Expr != nil {
			assert.Equal(t, a.Expr.Source(), b.Expr.Source(), "command %d", i)
		}
	}
	require.True(t, reflect.DeepEqual(first.Instruments, second.Instruments))
}

func TestParse_UnknownKeyword(t *testing.T) {
	_, err := Parse("test.atoms", "SET x = 1\nFROB x\n", DefaultGrammar())

	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Line)
	assert.Contains(t, serr.Message, "FROB")
}

func TestParse_UndeclaredAliasIsSyntaxError(t *testing.T) {
	_, err := Parse("test.atoms", `QRY dmm "IDN?" -> v`, DefaultGrammar())

	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Line)
	assert.Contains(t, serr.Message, "dmm")
}

func TestParse_DuplicateAlias(t *testing.T) {
	text := "INST dmm sim \"0\"\nINST dmm sim \"1\"\n"
	_, err := Parse("test.atoms", text, DefaultGrammar())

	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Line)
}

func TestParse_UnbalancedBlocks(t *testing.T) {
	cases := map[string]struct {
		text string
		line int
	}{
		"unclosed if":        {"IF (1 > 0)\nSET x = 1\n", 1},
		"unclosed loop":      {"LOOP 3\nWAIT 1\n", 1},
		"stray endif":        {"SET x = 1\nENDIF\n", 2},
		"stray endloop":      {"ENDLOOP\n", 1},
		"stray else":         {"ELSE\n", 1},
		"crossed blocks":     {"LOOP 2\nIF (1 > 0)\nENDLOOP\nENDIF\n", 3},
		"double else":        {"IF (1 > 0)\nELSE\nELSE\nENDIF\n", 3},
		"endif closing loop": {"LOOP 2\nENDIF\n", 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("test.atoms", tc.text, DefaultGrammar())
			var serr *SyntaxError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tc.line, serr.Line)
		})
	}
}

func TestParse_MalformedInput(t *testing.T) {
	cases := map[string]string{
		"set without equals":    "SET x 1\n",
		"set bad name":          "SET 2x = 1\n",
		"wait missing duration": "WAIT\n",
		"wait bad duration":     "WAIT soon\n",
		"wait negative":         "WAIT -5s\n",
		"inst wrong arity":      "INST dmm sim\n",
		"record empty":          "RECORD\n",
		"if without predicate":  "IF\nENDIF\n",
		"bad expression":        "SET x = ((1\n",
		"unterminated string":   "SET x = \"abc\n",
		"call without args":     "INST dmm sim \"0\"\nCMD dmm\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("test.atoms", text, DefaultGrammar())
			var serr *SyntaxError
			require.ErrorAs(t, err, &serr, "expected syntax error, got %v", err)
		})
	}
}

func TestParse_ConditionalLowering(t *testing.T) {
	text := `IF (1 > 0)
SET a = 1
ELSE
SET a = 2
ENDIF
`
	s := mustParse(t, text)

	// Layout: 0 IF, 1 SET(true), 2 Jump, 3 SET(false), 4 NoOp(endif), 5 NoOp(trailing).
	require.Equal(t, KindConditional, s.Commands[0].Kind)
	assert.Equal(t, 3, s.Commands[0].Target, "false branch starts after the else jump")
	require.Equal(t, KindJump, s.Commands[2].Kind)
	assert.Equal(t, 4, s.Commands[2].Target, "true branch jumps past the else body")
}

func TestParse_LoopLowering(t *testing.T) {
	text := `LOOP 2
SET a = 1
ENDLOOP
`
	s := mustParse(t, text)

	// Layout: 0 LOOP, 1 SET, 2 Jump back, 3 NoOp(trailing).
	require.Equal(t, KindLoop, s.Commands[0].Kind)
	require.Equal(t, KindJump, s.Commands[2].Kind)
	assert.Equal(t, 0, s.Commands[2].Target)
	assert.Equal(t, 3, s.Commands[0].Target)
}

func TestParse_QueryCapture(t *testing.T) {
	text := "INST dmm sim \"0\"\nQRY dmm \"READ?\" -> v\n"
	s := mustParse(t, text)

	var call *Command
	for i := range s.Commands {
		if s.Commands[i].Kind == KindInstrumentCall {
			call = &s.Commands[i]
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, OpQuery, call.Op)
	assert.Equal(t, "dmm", call.Alias)
	assert.Equal(t, "v", call.SaveAs)
	require.Len(t, call.Args, 1)
	assert.Equal(t, `"READ?"`, call.Args[0].Source())
}

func TestParse_WaitDurations(t *testing.T) {
	s := mustParse(t, "WAIT 0\nWAIT 250\nWAIT 1s\n")

	var waits []Command
	for _, cmd := range s.Commands {
		if cmd.Kind == KindWait {
			waits = append(waits, cmd)
		}
	}
	require.Len(t, waits, 3)
	assert.Equal(t, int64(0), waits[0].Duration.Milliseconds())
	assert.Equal(t, int64(250), waits[1].Duration.Milliseconds())
	assert.Equal(t, int64(1000), waits[2].Duration.Milliseconds())
}

func TestParse_CustomGrammar(t *testing.T) {
	g := DefaultGrammar()
	g.Set = "LET"
	g.Record = "MEAS"
	g.CommentPrefixes = []string{";"}

	text := "; legacy corpus\nLET x = 1\nMEAS x\n"
	s, err := Parse("legacy.atoms", text, g)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindAssignment, KindRecord}, kinds(s))

	// The default spellings are unknown commands under the custom table.
	_, err = Parse("legacy.atoms", "SET x = 1\n", g)
	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	text := "// header\n\n# also a comment\nSET x = 1\n"
	s := mustParse(t, text)
	require.Equal(t, []Kind{KindAssignment}, kinds(s))
	// Line numbering survives the noise.
	for _, cmd := range s.Commands {
		if cmd.Kind == KindAssignment {
			assert.Equal(t, 4, cmd.Line)
		}
	}
}
