package tui

import "strings"

// Command is one parsed ":" prompt entry.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a prompt entry (without the leading ':'). The
// name is lowercased; the argument text keeps its case but collapses
// runs of whitespace, so ":chat  Rosa  Manalo" finds "Rosa Manalo".
func ParseCommand(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{
		Name: strings.ToLower(fields[0]),
		Args: strings.Join(fields[1:], " "),
	}
}
