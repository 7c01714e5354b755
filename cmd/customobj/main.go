package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/hatlonely/customobj"
	"github.com/hatlonely/customobj/config"
	clog "github.com/hatlonely/customobj/log"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/schema"
)

const usage = `usage: customobj [-c=<path>] [-v] <command> [<args>]

Configuration flags:

   -c          The configuration file (.yaml, .yml, .toml or .json). Without it a local
               sqlite database customobj.db is used.
   -v          Log generated SQL and migration statements at debug level

Commands
   repair      Recreate missing tables, columns, join tables, indexes and foreign keys
   types       List all object types
   describe    Display the fields of a type given by id or name
   help        Display help message
`

var (
	configFlag  = flag.String("c", "", "configuration file path")
	verboseFlag = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	log.SetFlags(0)
	args := flag.Args()
	if len(args) == 0 {
		log.Printf("missing command\n\n")
		fmt.Print(usage)
		os.Exit(2)
	}
	if args[0] == "help" {
		fmt.Print(usage)
		return
	}

	options := &customobj.Options{}
	if *configFlag != "" {
		if err := config.Load(*configFlag, options); err != nil {
			log.Fatalf("load config failed: %v", err)
		}
	} else if err := config.SetDefaults(options); err != nil {
		log.Fatalf("set defaults failed: %v", err)
	}
	// 由 repair 命令显式执行
	options.Engine.RepairOnStart = false
	if *verboseFlag {
		options.GormLog.Level = "info"
		if options.Log != nil {
			options.Log.Level = "debug"
		} else if l, ok := clog.Default().(*logger.SLog); ok {
			_ = l.SetLevel("debug")
		}
	}

	e, err := customobj.NewEngineWithOptions(options)
	if err != nil {
		log.Fatalf("create engine failed: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	switch cmd := args[0]; cmd {
	case "repair":
		err = repair(ctx, e)
	case "types":
		err = types(ctx, e)
	case "describe":
		err = describe(ctx, e, args[1:])
	default:
		err = errors.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Printf("%s: %v", args[0], err)
		_ = e.Close()
		os.Exit(1)
	}
}

func repair(ctx context.Context, e *customobj.Engine) error {
	report, err := e.Repair(ctx)
	if err != nil {
		return err
	}
	if report.Empty() {
		fmt.Println("nothing to repair")
		return nil
	}
	for _, group := range []struct {
		name  string
		items []string
	}{
		{"table", report.Tables},
		{"column", report.Columns},
		{"join table", report.JoinTables},
		{"index", report.Indexes},
		{"foreign key", report.ForeignKeys},
	} {
		for _, item := range group.items {
			fmt.Printf("created %s %s\n", group.name, item)
		}
	}
	for _, item := range report.Skipped {
		fmt.Printf("skipped %s\n", item)
	}
	return nil
}

func types(ctx context.Context, e *customobj.Engine) error {
	tds, err := e.ListTypes(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTABLE\tDESCRIPTION")
	for _, td := range tds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", td.ID, td.Name, schema.TableName(td.ID), td.Description)
	}
	return w.Flush()
}

func describe(ctx context.Context, e *customobj.Engine, args []string) error {
	if len(args) != 1 {
		return errors.New("expect a type id or name")
	}

	var td *schema.TypeDescriptor
	var err error
	if id, perr := strconv.ParseInt(args[0], 10, 64); perr == nil {
		td, err = e.GetType(ctx, id)
	} else {
		td, err = e.GetTypeByName(ctx, args[0])
	}
	if err != nil {
		return err
	}

	rt, err := e.RecordType(ctx, td.ID)
	if err != nil {
		return err
	}
	out := map[string]any{
		"id":      td.ID,
		"name":    td.Name,
		"plural":  td.DisplayPlural(),
		"table":   rt.Table,
		"version": rt.Version,
	}
	var fields []any
	for _, b := range rt.Bindings {
		f := map[string]any{"field": b.Plugin.Wire(b.Field)}
		if b.Column != nil {
			f["column"] = b.Column.Name
		}
		if b.Relation != nil && b.Relation.JoinTable != "" {
			f["joinTable"] = b.Relation.JoinTable
		}
		fields = append(fields, f)
	}
	out["fields"] = fields
	var skipped []string
	for _, s := range rt.Skipped {
		skipped = append(skipped, fmt.Sprintf("%s: %v", s.Field.Name, s.Err))
	}
	if len(skipped) > 0 {
		out["skipped"] = skipped
	}

	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
