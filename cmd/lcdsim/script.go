package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"charlcd-go/drivers/charlcd"
)

type opKind int

const (
	opTxn   opKind = iota // one bus transaction
	opWait                // idle ticks
	opWedge               // hold/release the model's busy flag
)

type op struct {
	kind opKind
	txn  charlcd.Transaction
	n    uint32
	on   bool
	line int
}

// Standard 8-bit, 2-line bring-up.
var initSeq = []byte{0x38, 0x0C, 0x01, 0x06}

// parseScript reads one command per line:
//
//	cmd 0x38          instruction write
//	data 0x41 | data A  data write
//	text "hello"      one data write per byte
//	init              function set, display on, clear, entry mode
//	clear | home
//	goto <row> <col>  set DDRAM address (rows 0..1)
//	wait <ticks>
//	wedge on|off
//
// '#' starts a comment.
func parseScript(r io.Reader) ([]op, error) {
	var ops []op
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		args, err := shlex.Split(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if len(args) == 0 {
			continue
		}
		got, err := parseLine(args)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", n, args[0], err)
		}
		for i := range got {
			got[i].line = n
		}
		ops = append(ops, got...)
	}
	return ops, sc.Err()
}

func txn(rs bool, v byte) op {
	return op{kind: opTxn, txn: charlcd.Transaction{RS: rs, Data: v}}
}

func parseLine(args []string) ([]op, error) {
	verb, rest := strings.ToLower(args[0]), args[1:]
	want := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("want %d argument(s), got %d", n, len(rest))
		}
		return nil
	}
	switch verb {
	case "cmd", "data":
		if err := want(1); err != nil {
			return nil, err
		}
		v, err := parseByte(rest[0])
		if err != nil {
			return nil, err
		}
		return []op{txn(verb == "data", v)}, nil
	case "text":
		var ops []op
		for _, c := range []byte(strings.Join(rest, " ")) {
			ops = append(ops, txn(true, c))
		}
		return ops, nil
	case "init":
		var ops []op
		for _, c := range initSeq {
			ops = append(ops, txn(false, c))
		}
		return ops, want(0)
	case "clear":
		return []op{txn(false, 0x01)}, want(0)
	case "home":
		return []op{txn(false, 0x02)}, want(0)
	case "goto":
		if err := want(2); err != nil {
			return nil, err
		}
		row, err1 := strconv.ParseUint(rest[0], 0, 8)
		col, err2 := strconv.ParseUint(rest[1], 0, 8)
		if err1 != nil || err2 != nil || row > 1 || col > 0x27 {
			return nil, fmt.Errorf("bad position %s,%s", rest[0], rest[1])
		}
		return []op{txn(false, 0x80|byte(row*0x40+col))}, nil
	case "wait":
		if err := want(1); err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(rest[0], 0, 32)
		if err != nil {
			return nil, err
		}
		return []op{{kind: opWait, n: uint32(n)}}, nil
	case "wedge":
		if err := want(1); err != nil {
			return nil, err
		}
		switch rest[0] {
		case "on":
			return []op{{kind: opWedge, on: true}}, nil
		case "off":
			return []op{{kind: opWedge}}, nil
		}
		return nil, fmt.Errorf("want on or off, got %q", rest[0])
	}
	return nil, fmt.Errorf("unknown command")
}

func parseByte(s string) (byte, error) {
	// A lone non-digit is taken literally: "data A".
	if len(s) == 1 && (s[0] < '0' || s[0] > '9') {
		return s[0], nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte %q", s)
	}
	return byte(v), nil
}
