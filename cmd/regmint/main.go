package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/regmint/regmint"
	"github.com/regmint/regmint/uid"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("put"),
	readline.PcItem("row"),
	readline.PcItem("backfill"),
	readline.PcItem("alloc"),
	readline.PcItem("entry"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `put <table> <rowkey> col=value ...
row <table> <rowkey>
backfill {"table_name":"t","table_vertical":["x","y"],...}
alloc <n> {"table_name":"t",...}
entry <uuid>
exit`

func putRow(e *regmint.Engine, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: put <table> <rowkey> col=value ...")
	}
	cols := map[string]string{}
	for _, pair := range args[2:] {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("bad column %q", pair)
		}
		cols[name] = value
	}
	return e.PutRow(args[0], args[1], cols)
}

func showRow(e *regmint.Engine, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: row <table> <rowkey>")
	}
	cols, err := e.GetRow(args[0], args[1])
	if err != nil {
		return err
	}
	if cols == nil {
		return fmt.Errorf("no such row")
	}
	for name, value := range cols {
		fmt.Printf("%s\t%s\n", name, value)
	}
	return nil
}

func parseDescriptor(args []string) (desc regmint.TableDescriptor, err error) {
	err = json.Unmarshal([]byte(strings.Join(args, " ")), &desc)
	return
}

func backfill(e *regmint.Engine, args []string) error {
	desc, err := parseDescriptor(args)
	if err != nil {
		return err
	}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	if err != nil {
		return err
	}
	fmt.Printf("%d updated\n", count)
	return nil
}

func alloc(e *regmint.Engine, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: alloc <n> <descriptor json>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	desc, err := parseDescriptor(args[1:])
	if err != nil {
		return err
	}
	ids, err := e.AllocateIdentifiers(n, desc)
	if err != nil {
		return err
	}
	for _, u := range ids {
		fmt.Println(u.String())
	}
	return nil
}

func showEntry(e *regmint.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: entry <uuid>")
	}
	u, err := uid.ParseUID(args[0])
	if err != nil {
		return err
	}
	entry, err := e.RegistryEntry(u)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("not in registry")
	}
	fmt.Printf("table\t%s\ncolumn\t%s\nvertical\t%v\nnamespace\t%s\ndrive\t%v\nmapped\t%v\ncreated\t%s\n",
		entry.Table, entry.IDColumn, entry.Vertical, entry.Namespace,
		entry.DocumentDrive, entry.ExternallyMapped, entry.CreatedAt)
	return nil
}

func main() {
	if len(os.Args) != 2 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: regmint <dbdir>")
		os.Exit(-2)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/regmint.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	e, err := regmint.Open(os.Args[1], regmint.Options{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println(usage)
		case "put":
			err = putRow(e, args)
		case "row":
			err = showRow(e, args)
		case "backfill":
			err = backfill(e, args)
		case "alloc":
			err = alloc(e, args)
		case "entry":
			err = showEntry(e, args)
		case "exit", "quit":
			ex := 0
			err = e.Close()
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				ex = -1
			}
			os.Exit(ex)
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
	_ = e.Close()
}
