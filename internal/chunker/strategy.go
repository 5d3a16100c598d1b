package chunker

// Strategy is the closed set of chunking algorithms.
type Strategy int

const (
	Fixed Strategy = iota
	Recursive
	LangchainRecursive
	Token
	Semantic
	Hierarchical
)

var strategyNames = map[Strategy]string{
	Fixed:              "fixed",
	Recursive:          "recursive",
	LangchainRecursive: "langchain_recursive",
	Token:              "token",
	Semantic:           "semantic",
	Hierarchical:       "hierarchical",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the declared strategies.
func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy maps a strategy name to its enum value.
func ParseStrategy(name string) (Strategy, bool) {
	for s, n := range strategyNames {
		if n == name {
			return s, true
		}
	}
	return Fixed, false
}

// Names lists every strategy name in declaration order.
func Names() []string {
	out := make([]string, 0, len(strategyNames))
	for s := Fixed; s <= Hierarchical; s++ {
		out = append(out, s.String())
	}
	return out
}
