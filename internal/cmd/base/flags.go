package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
)

// FlagSet wraps a flag.FlagSet to render help text in the same layout for
// every command.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet around f. Output from the underlying set is
// discarded; commands render flags through Help.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.Usage = func() {}
	f.SetOutput(&bytes.Buffer{})
	return &FlagSet{FlagSet: f}
}

// Help returns the usage text for every defined flag.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&b, "=%s", fl.DefValue)
		}
		fmt.Fprintf(&b, "\n      %s\n", fl.Usage)
	})
	return strings.TrimRight(b.String(), "\n")
}
