package script

// Grammar is the keyword table the parser matches command lines against.
// The token set is a hosting-application contract: existing .atoms corpora
// differ in their exact spellings, so the keywords are data, not constants.
// Keywords are matched case-insensitively on the first token of each line.
type Grammar struct {
	// CommentPrefixes mark whole-line comments when they start a line.
	CommentPrefixes []string

	Declare string // alias declaration: Declare <alias> <driver> <address>
	Set     string // assignment: Set <ident> = <expr>
	Wait    string // suspension: Wait <duration>
	Command string // instrument write: Command <alias> <args...>
	Query   string // instrument query: Query <alias> <args...> [-> <ident>]
	Record  string // measurement record: Record [<ident> =] <expr>

	If      string
	Else    string
	EndIf   string
	Loop    string
	While   string // modifier: Loop While <pred>
	EndLoop string

	// Capture separates a query's arguments from the variable that receives
	// its result.
	Capture string
}

// DefaultGrammar returns the grammar the stock .atoms corpus uses.
func DefaultGrammar() Grammar {
	return Grammar{
		CommentPrefixes: []string{"//", "#"},
		Declare:         "INST",
		Set:             "SET",
		Wait:            "WAIT",
		Command:         "CMD",
		Query:           "QRY",
		Record:          "RECORD",
		If:              "IF",
		Else:            "ELSE",
		EndIf:           "ENDIF",
		Loop:            "LOOP",
		While:           "WHILE",
		EndLoop:         "ENDLOOP",
		Capture:         "->",
	}
}
