package discovery

import (
	"regexp"
	"strings"
)

// Launch is a pool or token creation seen in a transaction's logs.
type Launch struct {
	Program    string // program that emitted the creation log
	Signature  string // transaction signature
	Slot       int64
	EventIndex int // log line index of the creation instruction
}

// Parser recognizes launch instructions in program logs.
type Parser struct {
	rules map[string]*regexp.Regexp // programID -> creation log pattern
}

// NewParser creates a parser with the Raydium and pump.fun rules registered.
func NewParser() *Parser {
	p := &Parser{rules: make(map[string]*regexp.Regexp)}
	p.Register(RaydiumAMMV4, regexp.MustCompile(`^Program log: initialize2`))
	p.Register(PumpFun, regexp.MustCompile(`^Program log: Instruction: Create$`))
	return p
}

// Register sets the creation pattern for a program.
func (p *Parser) Register(programID string, pattern *regexp.Regexp) {
	p.rules[programID] = pattern
}

// Detect returns the first launch in logs. A "Program log:" line is
// attributed to the innermost program on the invocation stack, so a
// creation log from a CPI callee is not credited to its caller.
func (p *Parser) Detect(signature string, slot int64, logs []string) (*Launch, bool) {
	var stack []string
	for i, line := range logs {
		if program, ok := invokedProgram(line); ok {
			stack = append(stack, program)
			continue
		}
		if isProgramExit(line) {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if len(stack) == 0 {
			continue
		}
		current := stack[len(stack)-1]
		rule, ok := p.rules[current]
		if !ok || !rule.MatchString(line) {
			continue
		}
		return &Launch{Program: current, Signature: signature, Slot: slot, EventIndex: i}, true
	}
	return nil, false
}

// invokedProgram parses "Program <id> invoke [<depth>]".
func invokedProgram(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "Program ")
	if !ok {
		return "", false
	}
	id, tail, ok := strings.Cut(rest, " ")
	if !ok || strings.HasSuffix(id, ":") || !strings.HasPrefix(tail, "invoke") {
		return "", false
	}
	return id, true
}

// isProgramExit matches "Program <id> success" and "Program <id> failed: ...".
func isProgramExit(line string) bool {
	rest, ok := strings.CutPrefix(line, "Program ")
	if !ok {
		return false
	}
	id, tail, ok := strings.Cut(rest, " ")
	return ok && !strings.HasSuffix(id, ":") && (tail == "success" || strings.HasPrefix(tail, "failed"))
}
