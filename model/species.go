package model

import "fmt"

// Species is the cyclic type carried by every agent.
type Species int

const (
	Rock Species = iota
	Scissors
	Paper
)

// AllSpecies is the fixed ordered cycle. Iteration over species always uses
// this order so that tallies, snapshots and tie-breaks are deterministic.
var AllSpecies = [...]Species{Rock, Scissors, Paper}

// String returns the lowercase species name.
func (s Species) String() string {
	switch s {
	case Rock:
		return "rock"
	case Scissors:
		return "scissors"
	case Paper:
		return "paper"
	default:
		return fmt.Sprintf("species(%d)", int(s))
	}
}

// Valid reports whether s is one of the three cycle members.
func (s Species) Valid() bool {
	return s >= Rock && s <= Paper
}

// ParseSpecies is the inverse of Species.String.
func ParseSpecies(name string) (Species, error) {
	for _, s := range AllSpecies {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown species %q", name)
}
