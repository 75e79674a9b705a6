package script

// Plan summarizes the work a script will perform, used for progress
// reporting. Counted loops with literal bounds multiply the weight of their
// bodies; predicate loops and loops with variable bounds cannot be sized
// ahead of time and weigh one pass.
type Plan struct {
	// TotalSteps is the weighted number of executable commands.
	TotalSteps int
	// Instruments is the number of declared aliases.
	Instruments int
}

// Plan computes the execution plan for the script.
func (s *Script) Plan() Plan {
	total, _ := planRange(s.Commands, 0, len(s.Commands))
	return Plan{TotalSteps: total, Instruments: len(s.Instruments)}
}

// planRange walks commands[from:to) and returns the weighted step count and
// the index it stopped at.
func planRange(commands []Command, from, to int) (int, int) {
	total := 0
	i := from
	for i < to {
		cmd := commands[i]
		switch cmd.Kind {
		case KindNoOp, KindJump:
			i++
		case KindLoop:
			// Body spans (i, cmd.Target-1); the closing jump sits at
			// cmd.Target-1.
			body, _ := planRange(commands, i+1, cmd.Target-1)
			total += 1 + body*loopWeight(cmd)
			i = cmd.Target
		default:
			total++
			i++
		}
	}
	return total, i
}

func loopWeight(cmd Command) int {
	if cmd.Count == nil {
		return 1
	}
	// A literal bound has no variable references and evaluates standalone.
	if len(cmd.Count.Refs()) != 0 {
		return 1
	}
	n, err := cmd.Count.Int(nil)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
