// tuplespace is an interactive CLI for exercising a local tuple space.
//
// Usage:
//
//	tuplespace --name <space-name> [--size <bytes>] [--config <file>]
//
// Commands (in REPL):
//
//	put <field>...            Post a tuple (fields: integers or strings)
//	get <field>...            Destructively match a tuple ('*' = wildcard)
//	read <field>...           Non-destructively match a tuple
//	count <arity>             Count live tuples of the given arity
//	info                      Show region stats
//	help                      Show this help
//	exit / quit / q           Exit
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/disaggr/memspace/pkg/tuplespace"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name       string
		size       uint32
		configPath string
	)

	pflag.StringVar(&name, "name", "", "space name (backed by /dev/shm/<name>)")
	pflag.Uint32Var(&size, "size", 0, "region size in bytes when creating (default 1MiB)")
	pflag.StringVar(&configPath, "config", "", "HuJSON config file with name/size defaults")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if name == "" {
		name = cfg.Name
	}

	if size == 0 {
		size = cfg.Size
	}

	if name == "" {
		pflag.Usage()
		return fmt.Errorf("missing --name")
	}

	sp, err := tuplespace.Open(tuplespace.Options{Name: name, Size: size})
	if err != nil {
		return fmt.Errorf("opening space %q: %w", name, err)
	}
	defer sp.Close()

	if err := rememberSpace(name); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not update registry: %v\n", err)
	}

	repl := &repl{sp: sp, name: name}

	return repl.run()
}

type repl struct {
	sp   *tuplespace.Space
	name string
	ln   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return home + "/.tuplespace_history"
}

func (r *repl) run() error {
	r.ln = liner.NewLiner()
	defer r.ln.Close()

	r.ln.SetCtrlCAborts(true)
	r.ln.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.ln.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("tuplespace - space %q\n", r.name)
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.ln.Prompt("tuplespace> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.ln.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "read":
			r.cmdRead(args)
		case "count":
			r.cmdCount(args)
		case "info":
			r.cmdInfo()
		default:
			fmt.Printf("Unknown command: %s (type 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.ln.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"put", "get", "read", "count", "info", "help", "exit", "quit", "q"}

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}

	return out
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <field>...   Post a tuple (fields: integers or strings)")
	fmt.Println("  get <field>...   Destructively match a tuple ('*' = wildcard)")
	fmt.Println("  read <field>...  Non-destructively match a tuple")
	fmt.Println("  count <arity>    Count live tuples of the given arity")
	fmt.Println("  info             Show region stats")
	fmt.Println("  help             Show this help")
	fmt.Println("  exit / quit / q  Exit")
}

func parseValueField(tok string) tuplespace.Field {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return tuplespace.Int64(n)
	}

	return tuplespace.Str(tok)
}

func parseTemplateField(tok string) tuplespace.Field {
	if tok == "*" {
		return tuplespace.Wildcard{}
	}

	return parseValueField(tok)
}

func formatField(f tuplespace.Field) string {
	switch v := f.(type) {
	case tuplespace.Int64:
		return strconv.FormatInt(int64(v), 10)
	case tuplespace.Bytes:
		return fmt.Sprintf("%q", string(v))
	default:
		return "?"
	}
}

func formatTuple(t tuplespace.Tuple) string {
	parts := make([]string, len(t))
	for i, f := range t {
		parts[i] = formatField(f)
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

func (r *repl) cmdPut(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: put <field>...")
		return
	}

	tup := make(tuplespace.Tuple, len(args))
	for i, a := range args {
		tup[i] = parseValueField(a)
	}

	if err := r.sp.Put(tup); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: put %s\n", formatTuple(tup))
}

func (r *repl) cmdGet(args []string) {
	r.match(args, true)
}

func (r *repl) cmdRead(args []string) {
	r.match(args, false)
}

func (r *repl) match(args []string, destructive bool) {
	if len(args) == 0 {
		fmt.Println("Usage: get|read <field>... ('*' = wildcard)")
		return
	}

	tmpl := make(tuplespace.Template, len(args))
	for i, a := range args {
		tmpl[i] = parseTemplateField(a)
	}

	var (
		got tuplespace.Tuple
		ok  bool
		err error
	)

	if destructive {
		got, ok, err = r.sp.Get(tmpl)
	} else {
		got, ok, err = r.sp.Read(tmpl)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if !ok {
		fmt.Println("(no match)")
		return
	}

	fmt.Println(formatTuple(got))
}

func (r *repl) cmdCount(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: count <arity>")
		return
	}

	arity, err := strconv.Atoi(args[0])
	if err != nil || arity < 0 || arity > 255 {
		fmt.Println("arity must be an integer in [0, 255]")
		return
	}

	count, err := r.sp.Count(uint8(arity))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Live tuples of arity %d: %d\n", arity, count)
}

func (r *repl) cmdInfo() {
	stats, err := r.sp.Stats()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Space:      %s\n", r.name)
	fmt.Printf("Capacity:   %d bytes\n", stats.Capacity)
	fmt.Printf("Data start: %d\n", stats.DataStart)
	fmt.Printf("End cursor: %d\n", stats.EndCursor)
	fmt.Printf("Used:       %d bytes\n", stats.EndCursor-stats.DataStart)
}
