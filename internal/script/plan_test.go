package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan_FlatScript(t *testing.T) {
	s := mustParse(t, "SET x = 1\nWAIT 0\nRECORD x\n")
	p := s.Plan()
	assert.Equal(t, 3, p.TotalSteps)
	assert.Equal(t, 0, p.Instruments)
}

func TestPlan_LiteralLoopMultipliesBody(t *testing.T) {
	s := mustParse(t, "LOOP 5\nSET x = 1\nWAIT 0\nENDLOOP\n")
	p := s.Plan()
	// One step for the loop head plus five weighted passes of two commands.
	assert.Equal(t, 11, p.TotalSteps)
}

func TestPlan_VariableLoopWeighsOnePass(t *testing.T) {
	s := mustParse(t, "SET n = 4\nLOOP n\nWAIT 0\nENDLOOP\n")
	p := s.Plan()
	assert.Equal(t, 3, p.TotalSteps)
}

func TestPlan_WhileLoopWeighsOnePass(t *testing.T) {
	s := mustParse(t, "SET x = 0\nLOOP WHILE (x < 3)\nSET x = x + 1\nENDLOOP\n")
	p := s.Plan()
	assert.Equal(t, 3, p.TotalSteps)
}

func TestPlan_NestedLoops(t *testing.T) {
	s := mustParse(t, "LOOP 2\nLOOP 3\nWAIT 0\nENDLOOP\nENDLOOP\n")
	p := s.Plan()
	// Inner loop: 1 + 3*1 = 4. Outer: 1 + 2*4 = 9.
	assert.Equal(t, 9, p.TotalSteps)
}

func TestPlan_ConditionalCountsBothBranches(t *testing.T) {
	s := mustParse(t, "SET x = 1\nIF (x > 0)\nRECORD x\nELSE\nWAIT 0\nENDIF\n")
	p := s.Plan()
	// SET, IF, RECORD, WAIT. The else jump and the endif marker carry no
	// weight.
	assert.Equal(t, 4, p.TotalSteps)
}

func TestPlan_CountsInstruments(t *testing.T) {
	s := mustParse(t, "INST a sim \"0\"\nINST b sim \"1\"\nCMD a \"RST\"\n")
	p := s.Plan()
	assert.Equal(t, 2, p.Instruments)
	assert.Equal(t, 1, p.TotalSteps)
}
