package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atomsai/testflow/internal/expr"
)

// ParseFile reads and parses a .atoms script from disk.
func ParseFile(path string, g Grammar) (*Script, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Parse(filepath.Base(path), string(text), g)
}

// Parse turns script text into a Script. It validates structure exhaustively:
// unknown keywords, wrong arity, malformed expressions, unbalanced
// IF/ELSE/ENDIF and LOOP/ENDLOOP blocks, and use of undeclared or duplicate
// instrument aliases are all SyntaxErrors. No instrument is ever contacted.
func Parse(name, text string, g Grammar) (*Script, error) {
	p := &parser{
		grammar:     g,
		name:        name,
		instruments: map[string]Declaration{},
	}
	for i, raw := range strings.Split(text, "\n") {
		if err := p.parseLine(i+1, raw); err != nil {
			return nil, err
		}
	}
	if len(p.blocks) > 0 {
		frame := p.blocks[len(p.blocks)-1]
		return nil, syntaxErrorf(frame.line, "unclosed %s block", frame.keyword)
	}
	return &Script{
		Name:        name,
		Commands:    p.commands,
		Instruments: p.instruments,
	}, nil
}

// blockFrame tracks one open IF or LOOP block during parsing. Jump targets
// are patched into the command list when the block closes.
type blockFrame struct {
	kind     Kind
	keyword  string
	cmdIndex int
	line     int
	elseJump int
	sawElse  bool
}

type parser struct {
	grammar     Grammar
	name        string
	commands    []Command
	instruments map[string]Declaration
	blocks      []blockFrame
}

func (p *parser) parseLine(line int, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || p.isComment(trimmed) {
		p.commands = append(p.commands, Command{Kind: KindNoOp, Line: line})
		return nil
	}

	tokens, err := splitTokens(trimmed)
	if err != nil {
		return syntaxErrorf(line, "%s", err)
	}
	keyword, rest := tokens[0], tokens[1:]
	g := &p.grammar

	switch {
	case strings.EqualFold(keyword, g.Declare):
		return p.parseDeclare(line, rest)
	case strings.EqualFold(keyword, g.Set):
		return p.parseSet(line, rest)
	case strings.EqualFold(keyword, g.Wait):
		return p.parseWait(line, rest)
	case strings.EqualFold(keyword, g.Command):
		return p.parseCall(line, rest, OpCommand)
	case strings.EqualFold(keyword, g.Query):
		return p.parseCall(line, rest, OpQuery)
	case strings.EqualFold(keyword, g.Record):
		return p.parseRecord(line, rest)
	case strings.EqualFold(keyword, g.If):
		return p.parseIf(line, rest)
	case strings.EqualFold(keyword, g.Else):
		return p.parseElse(line, rest)
	case strings.EqualFold(keyword, g.EndIf):
		return p.parseEndIf(line, rest)
	case strings.EqualFold(keyword, g.Loop):
		return p.parseLoop(line, rest)
	case strings.EqualFold(keyword, g.EndLoop):
		return p.parseEndLoop(line, rest)
	}
	return syntaxErrorf(line, "unknown command %q", keyword)
}

func (p *parser) isComment(trimmed string) bool {
	for _, prefix := range p.grammar.CommentPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func (p *parser) parseDeclare(line int, args []string) error {
	if len(args) != 3 {
		return syntaxErrorf(line, "%s requires alias, driver and address", p.grammar.Declare)
	}
	alias, driver, address := args[0], args[1], unquote(args[2])
	if !isIdent(alias) {
		return syntaxErrorf(line, "invalid instrument alias %q", alias)
	}
	if prev, exists := p.instruments[alias]; exists {
		return syntaxErrorf(line, "instrument %q already declared at line %d", alias, prev.Line)
	}
	p.instruments[alias] = Declaration{Alias: alias, Driver: driver, Address: address, Line: line}
	p.commands = append(p.commands, Command{Kind: KindNoOp, Line: line})
	return nil
}

func (p *parser) parseSet(line int, args []string) error {
	if len(args) < 3 || args[1] != "=" {
		return syntaxErrorf(line, "%s requires the form: %s <name> = <expression>", p.grammar.Set, p.grammar.Set)
	}
	name := args[0]
	if !isIdent(name) {
		return syntaxErrorf(line, "invalid variable name %q", name)
	}
	compiled, err := p.compile(line, args[2:])
	if err != nil {
		return err
	}
	p.commands = append(p.commands, Command{Kind: KindAssignment, Line: line, Name: name, Expr: compiled})
	return nil
}

func (p *parser) parseWait(line int, args []string) error {
	if len(args) != 1 {
		return syntaxErrorf(line, "%s requires exactly one duration", p.grammar.Wait)
	}
	dur, err := parseDuration(args[0])
	if err != nil {
		return syntaxErrorf(line, "invalid duration %q: %s", args[0], err)
	}
	p.commands = append(p.commands, Command{Kind: KindWait, Line: line, Duration: dur})
	return nil
}

func (p *parser) parseCall(line int, args []string, op string) error {
	if len(args) < 2 {
		return syntaxErrorf(line, "instrument call requires an alias and at least one argument")
	}
	alias := args[0]
	if _, declared := p.instruments[alias]; !declared {
		return syntaxErrorf(line, "instrument %q used before declaration", alias)
	}

	saveAs := ""
	argTokens := args[1:]
	if n := len(argTokens); op == OpQuery && n >= 2 && argTokens[n-2] == p.grammar.Capture {
		saveAs = argTokens[n-1]
		if !isIdent(saveAs) {
			return syntaxErrorf(line, "invalid capture variable %q", saveAs)
		}
		argTokens = argTokens[:n-2]
		if len(argTokens) == 0 {
			return syntaxErrorf(line, "instrument query has no arguments before %q", p.grammar.Capture)
		}
	}

	compiled := make([]*expr.Expr, 0, len(argTokens))
	for _, tok := range argTokens {
		e, err := p.compile(line, []string{tok})
		if err != nil {
			return err
		}
		compiled = append(compiled, e)
	}
	p.commands = append(p.commands, Command{
		Kind:   KindInstrumentCall,
		Line:   line,
		Alias:  alias,
		Op:     op,
		Args:   compiled,
		SaveAs: saveAs,
	})
	return nil
}

func (p *parser) parseRecord(line int, args []string) error {
	if len(args) == 0 {
		return syntaxErrorf(line, "%s requires an expression", p.grammar.Record)
	}
	name := ""
	exprTokens := args
	if len(args) >= 3 && args[1] == "=" && isIdent(args[0]) {
		name = args[0]
		exprTokens = args[2:]
	}
	compiled, err := p.compile(line, exprTokens)
	if err != nil {
		return err
	}
	if name == "" {
		name = compiled.Source()
	}
	p.commands = append(p.commands, Command{Kind: KindRecord, Line: line, Name: name, Expr: compiled})
	return nil
}

func (p *parser) parseIf(line int, args []string) error {
	if len(args) == 0 {
		return syntaxErrorf(line, "%s requires a predicate", p.grammar.If)
	}
	pred, err := p.compile(line, args)
	if err != nil {
		return err
	}
	p.commands = append(p.commands, Command{Kind: KindConditional, Line: line, Pred: pred, Target: -1})
	p.blocks = append(p.blocks, blockFrame{
		kind:     KindConditional,
		keyword:  p.grammar.If,
		cmdIndex: len(p.commands) - 1,
		line:     line,
		elseJump: -1,
	})
	return nil
}

func (p *parser) parseElse(line int, args []string) error {
	if len(args) != 0 {
		return syntaxErrorf(line, "%s takes no arguments", p.grammar.Else)
	}
	frame := p.openBlock(KindConditional)
	if frame == nil || frame.sawElse {
		return syntaxErrorf(line, "%s without a matching %s", p.grammar.Else, p.grammar.If)
	}
	// End the true branch with a jump patched at ENDIF, then route the
	// false branch here.
	p.commands = append(p.commands, Command{Kind: KindJump, Line: line, Target: -1})
	frame.elseJump = len(p.commands) - 1
	frame.sawElse = true
	p.commands[frame.cmdIndex].Target = len(p.commands)
	return nil
}

func (p *parser) parseEndIf(line int, args []string) error {
	if len(args) != 0 {
		return syntaxErrorf(line, "%s takes no arguments", p.grammar.EndIf)
	}
	frame := p.openBlock(KindConditional)
	if frame == nil {
		return syntaxErrorf(line, "%s without a matching %s", p.grammar.EndIf, p.grammar.If)
	}
	p.blocks = p.blocks[:len(p.blocks)-1]
	p.commands = append(p.commands, Command{Kind: KindNoOp, Line: line})
	after := len(p.commands) - 1
	if frame.sawElse {
		p.commands[frame.elseJump].Target = after
	} else {
		p.commands[frame.cmdIndex].Target = after
	}
	return nil
}

func (p *parser) parseLoop(line int, args []string) error {
	if len(args) == 0 {
		return syntaxErrorf(line, "%s requires an iteration count or a %s predicate", p.grammar.Loop, p.grammar.While)
	}
	cmd := Command{Kind: KindLoop, Line: line, Target: -1}
	if strings.EqualFold(args[0], p.grammar.While) {
		if len(args) < 2 {
			return syntaxErrorf(line, "%s %s requires a predicate", p.grammar.Loop, p.grammar.While)
		}
		pred, err := p.compile(line, args[1:])
		if err != nil {
			return err
		}
		cmd.Pred = pred
	} else {
		count, err := p.compile(line, args)
		if err != nil {
			return err
		}
		cmd.Count = count
	}
	p.commands = append(p.commands, cmd)
	p.blocks = append(p.blocks, blockFrame{
		kind:     KindLoop,
		keyword:  p.grammar.Loop,
		cmdIndex: len(p.commands) - 1,
		line:     line,
		elseJump: -1,
	})
	return nil
}

func (p *parser) parseEndLoop(line int, args []string) error {
	if len(args) != 0 {
		return syntaxErrorf(line, "%s takes no arguments", p.grammar.EndLoop)
	}
	frame := p.openBlock(KindLoop)
	if frame == nil {
		return syntaxErrorf(line, "%s without a matching %s", p.grammar.EndLoop, p.grammar.Loop)
	}
	p.blocks = p.blocks[:len(p.blocks)-1]
	p.commands = append(p.commands, Command{Kind: KindJump, Line: line, Target: frame.cmdIndex})
	p.commands[frame.cmdIndex].Target = len(p.commands)
	return nil
}

// openBlock returns the innermost open block if it has the wanted kind.
// Closing keywords must match the innermost block; an ENDIF inside an open
// LOOP is a structural error reported by the caller.
func (p *parser) openBlock(kind Kind) *blockFrame {
	if len(p.blocks) == 0 {
		return nil
	}
	frame := &p.blocks[len(p.blocks)-1]
	if frame.kind != kind {
		return nil
	}
	return frame
}

func (p *parser) compile(line int, tokens []string) (*expr.Expr, error) {
	src := strings.Join(tokens, " ")
	compiled, err := expr.Compile(src, p.name, line)
	if err != nil {
		return nil, syntaxErrorf(line, "%s", err)
	}
	return compiled, nil
}

// parseDuration accepts Go duration syntax plus bare integers, which are
// taken as milliseconds to match existing script corpora.
func parseDuration(tok string) (time.Duration, error) {
	if isDigits(tok) {
		var ms int64
		for _, r := range tok {
			ms = ms*10 + int64(r-'0')
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	dur, err := time.ParseDuration(tok)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return dur, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// splitTokens splits a line on whitespace while keeping double-quoted
// strings as single tokens, quotes included, so they survive as HCL string
// literals.
func splitTokens(s string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuote := false
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			current.WriteRune(r)
		case (r == ' ' || r == '\t') && !inQuote:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return tokens, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
