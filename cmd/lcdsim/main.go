// Command lcdsim runs a display script through the charlcd driver against
// a behavioural HD44780 model and prints what ends up on the glass.
//
//	lcdsim [-clock 100e6] [-bus 400e3] [-v] [script]
//
// The script is read from stdin when no file is given.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"charlcd-go/drivers/charlcd"
	"charlcd-go/x/logx"
	"charlcd-go/x/mathx"
)

func main() {
	clock := flag.Float64("clock", 100e6, "driver clock in Hz")
	busHz := flag.Float64("bus", 400e3, "bus rate in Hz")
	cols := flag.Int("cols", 16, "display columns")
	maxPolls := flag.Uint("max-polls", 1000, "give up after this many busy polls (0 = never)")
	verbose := flag.Bool("v", false, "log every transaction")
	flag.Parse()

	if *verbose {
		logx.SetLevel(slog.LevelDebug)
	}
	if err := run(*clock, *busHz, *cols, uint32(*maxPolls), flag.Arg(0), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "lcdsim:", err)
		os.Exit(1)
	}
}

func run(clock, busHz float64, cols int, maxPolls uint32, path string, out io.Writer) error {
	clockHz, err := hz(clock, charlcd.ErrClockRange)
	if err != nil {
		return err
	}
	bus, err := hz(busHz, charlcd.ErrBusRange)
	if err != nil {
		return err
	}
	var in io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	ops, err := parseScript(in)
	if err != nil {
		return err
	}
	s, err := newSim(clockHz, bus)
	if err != nil {
		return err
	}
	s.maxPolls = maxPolls
	cols = mathx.Clamp(cols, 1, 40)
	runErr := s.run(ops)

	render(out, s, cols, isTerminal(out))
	return runErr
}

// hz converts a flag rate to uint32, refusing values the conversion would
// mangle.
func hz(v float64, errRange error) (uint32, error) {
	if !(v >= 0 && v <= math.MaxUint32) {
		return 0, errRange
	}
	return uint32(v), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func render(w io.Writer, s *sim, cols int, framed bool) {
	rows := 1
	if s.m.TwoLines() {
		rows = 2
	}
	edge := "+" + strings.Repeat("-", cols) + "+"
	if framed {
		fmt.Fprintln(w, edge)
	}
	for r := 0; r < rows; r++ {
		line := s.m.Line(r, cols)
		if !s.m.DisplayOn() {
			line = strings.Repeat(" ", cols)
		}
		if framed {
			fmt.Fprintf(w, "|%s|\n", line)
		} else {
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
	if framed {
		fmt.Fprintln(w, edge)
	}
	fmt.Fprintf(w, "ticks=%d bit_period=%d strobe=%d contention=%d\n",
		s.ticks, s.d.BitPeriod(), s.d.Milestones().StrobeWidth(), s.m.Contention())
}
