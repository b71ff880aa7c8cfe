package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"btreekv/btree"
	"btreekv/db"
	"btreekv/telemetry"

	"github.com/fatih/color"
)

type Cli struct {
	scanner    *bufio.Scanner
	out        io.Writer
	db         *db.DB
	visualizer *btree.Visualizer[int64]
	ok         func(a ...interface{}) string
	fail       func(a ...interface{}) string
}

func NewCli(s *bufio.Scanner, out io.Writer, d *db.DB) *Cli {
	return &Cli{
		scanner:    s,
		out:        out,
		db:         d,
		visualizer: &btree.Visualizer[int64]{Tree: d.Tree()},
		ok:         color.New(color.FgGreen).SprintFunc(),
		fail:       color.New(color.FgRed).SprintFunc(),
	}
}

// Start reads commands until EXIT or the end of input.
func (c *Cli) Start() error {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		exit, err := c.processInput(c.scanner.Text())
		if err != nil {
			return err
		}
		if exit {
			return nil
		}
		c.printPrompt()
	}
	return c.scanner.Err()
}

func (c *Cli) printHelp() {
	fmt.Fprint(c.out, `
B-Tree key-value CLI

Available Commands:
  SET <key> <val> Create a key-value pair
  GET <key>       Retrieve the value for key
  UPD <key> <val> Replace the value of an existing key
  DEL <key>       Remove a key-value pair
  SHOW            Print the index and all rows
  CHECK           Verify the index invariants
  MEM             Print the process memory usage
  STATS           Print per-operation timings
  HELP            Print this message
  EXIT            Terminate this session
`)
}

func (c *Cli) printPrompt() {
	fmt.Fprint(c.out, "> ")
}

func (c *Cli) processInput(line string) (exit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return false, nil
	}
	command := strings.ToLower(fields[0])
	switch command {
	default:
		fmt.Fprintf(c.out, "Unknown command \"%s\"\n", command)
	case "set":
		err = c.processSetCommand(fields[1:])
	case "get":
		err = c.processGetCommand(fields[1:])
	case "upd", "update":
		err = c.processUpdateCommand(fields[1:])
	case "del":
		err = c.processDeleteCommand(fields[1:])
	case "show":
		fmt.Fprintln(c.out, c.db)
		fmt.Fprint(c.out, c.visualizer.Visualize())
	case "check":
		c.processCheckCommand()
	case "mem":
		fmt.Fprintf(c.out, "Memory usage: %.2f MB\n", c.db.MemoryUsage())
	case "stats":
		c.processStatsCommand()
	case "help":
		c.printHelp()
	case "exit":
		return true, nil
	}
	return false, err
}

func (c *Cli) parseKey(arg string) (int64, bool) {
	key, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid key %q: keys are integers\n", arg)
		return 0, false
	}
	return key, true
}

func (c *Cli) processSetCommand(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: SET <key> <value>")
		return nil
	}
	key, valid := c.parseKey(args[0])
	if !valid {
		return nil
	}
	created, err := c.db.Create(key, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintln(c.out, c.fail("Key already exists."))
		return nil
	}
	fmt.Fprint(c.out, c.visualizer.Visualize())
	return nil
}

func (c *Cli) processGetCommand(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: GET <key>")
		return nil
	}
	key, valid := c.parseKey(args[0])
	if !valid {
		return nil
	}
	val, found, err := c.db.Read(key)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(c.out, c.fail("Key not found."))
		return nil
	}
	fmt.Fprintln(c.out, val)
	return nil
}

func (c *Cli) processUpdateCommand(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: UPD <key> <value>")
		return nil
	}
	key, valid := c.parseKey(args[0])
	if !valid {
		return nil
	}
	updated, err := c.db.Update(key, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if !updated {
		fmt.Fprintln(c.out, c.fail("Key not found."))
		return nil
	}
	fmt.Fprintln(c.out, c.ok("Updated."))
	return nil
}

func (c *Cli) processDeleteCommand(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: DEL <key>")
		return nil
	}
	key, valid := c.parseKey(args[0])
	if !valid {
		return nil
	}
	deleted, err := c.db.Delete(key)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintln(c.out, c.fail("Key not found."))
		return nil
	}
	fmt.Fprintln(c.out, c.ok("Deleted."))
	return nil
}

func (c *Cli) processCheckCommand() {
	tree := c.db.Tree()
	if err := tree.Validate(); err != nil {
		fmt.Fprintln(c.out, c.fail("Index is broken: "+err.Error()))
		return
	}
	fmt.Fprintln(c.out, c.ok(fmt.Sprintf("Index OK: %d keys, height %d, degree %d", tree.Len(), tree.Height(), tree.Degree())))
}

func (c *Cli) processStatsCommand() {
	summary := c.db.Summary()
	ops := make([]string, 0, len(summary))
	for op := range summary {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)
	for _, op := range ops {
		st := summary[telemetry.Op(op)]
		fmt.Fprintf(c.out, "%-6s count=%d failed=%d total=%s\n", op, st.Count, st.Failed, st.Elapsed)
	}
}
