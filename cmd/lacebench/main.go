// Command lacebench is a manual smoke-test CLI exercising the core
// read/write/page/filter/cancel surface end to end against a live backend:
// connect, list tables, fetch a schema, open a paging window (optionally
// filtered), and demonstrate cooperative cancellation of an in-flight async
// operation.
//
// Grounded on cmd/psqldef/psqldef.go's option-parsing shape (go-flags
// struct, $PGPASS-style env override, --password-prompt via
// golang.org/x/term, signal.NotifyContext for SIGINT/SIGTERM) and
// database/mysql/parser.go's use of k0kubun/pp/v3 for the --debug dump.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	"github.com/lace-db/lace/asyncop"
	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/drv"
	_ "github.com/lace-db/lace/drivers/mysql"
	_ "github.com/lace-db/lace/drivers/postgres"
	_ "github.com/lace-db/lace/drivers/sqlite"
	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/filter"
	"github.com/lace-db/lace/paging"
	"github.com/lace-db/lace/strarena"
	"github.com/lace-db/lace/util"
	"github.com/lace-db/lace/value"
)

var version = "dev"

type options struct {
	PasswordPrompt bool          `long:"password-prompt" description:"Prompt for a password instead of taking one from the connection string"`
	Table          string        `long:"table" description:"Table to exercise (default: first table returned by ListTables)" value-name:"name"`
	Filter         string        `long:"filter" description:"Raw SQL boolean expression applied as a filter, e.g. \"id > 10\"" value-name:"expr"`
	PageSize       int64         `long:"page-size" description:"Paging window size" value-name:"n" default:"50"`
	Timeout        time.Duration `long:"timeout" description:"Per-operation timeout" value-name:"duration" default:"10s"`
	Debug          bool          `long:"debug" description:"Pretty-print full result sets via pp"`
	Help           bool          `long:"help" description:"Show this help"`
	Version        bool          `long:"version" description:"Show this version"`
}

func parseOptions(args []string) (options, string) {
	var opts options
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[option...] connstr"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if len(rest) == 0 {
		fmt.Print("No connection string is specified!\n\n")
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	} else if len(rest) > 1 {
		fmt.Printf("Multiple connection strings given: %v\n\n", rest)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	return opts, rest[0]
}

func main() {
	util.InitSlog()
	opts, raw := parseOptions(os.Args[1:])

	cs, err := connstr.Parse(raw)
	if err != nil {
		log.Fatal(err)
	}

	if opts.PasswordPrompt {
		fmt.Print("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal(err)
		}
		// pass is the only copy of the typed password until it's handed to
		// SecureString; wipe it immediately rather than leaving it for the
		// next GC cycle.
		sec := strarena.NewSecureString(string(pass))
		for i := range pass {
			pass[i] = 0
		}
		cs.Password = sec.String()
		cs.HasPassword = true
		sec.Wipe()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, ok := drv.Lookup(string(cs.Driver))
	if !ok {
		log.Fatalf("lacebench: no driver registered for %q", cs.Driver)
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	conn, err := d.Connect(connectCtx, cs)
	cancel()
	// cs.Password has done its job (the driver copies what it needs into its
	// own DSN); wipe this process's copy now rather than let it sit in
	// memory for the rest of the run.
	strarena.WipeString(&cs.Password)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	fmt.Printf("connected: driver=%s status=%d\n", cs.Driver, conn.Status())

	tables := listTables(ctx, conn, opts.Timeout)
	fmt.Printf("tables (%d): %v\n", len(tables), tables)

	table := opts.Table
	if table == "" {
		if len(tables) == 0 {
			fmt.Println("no tables to exercise, stopping here")
			return
		}
		table = tables[0]
	}

	schema := getSchema(ctx, conn, table, opts.Timeout)
	fmt.Printf("schema %q: %d columns, %d indexes, %d foreign keys\n",
		schema.QualifiedName, len(schema.Columns), len(schema.Indexes), len(schema.ForeignKeys))
	if opts.Debug {
		pp.Println(schema)
	}

	dialect := dialectOf(cs.Driver)
	where := compileFilter(opts.Filter, schema, dialect)
	page := runPagingDemo(ctx, conn, dialect, table, where, opts.PageSize, opts.Timeout)
	fmt.Printf("page: loaded %d/%d rows (exact=%v, more-forward=%v)\n",
		page.LoadedCount(), page.TotalRows, !page.RowCountApproximate, page.HasMoreForward())
	if opts.Debug {
		pp.Println(page.Rows)
	}

	runCancelDemo(ctx, conn, table)
}

func listTables(ctx context.Context, conn drv.Conn, timeout time.Duration) []string {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tables, err := conn.ListTables(opCtx)
	if err != nil {
		log.Fatalf("list tables: %v", err)
	}
	return tables
}

func getSchema(ctx context.Context, conn drv.Conn, table string, timeout time.Duration) value.TableSchema {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	schema, err := conn.GetTableSchema(opCtx, table)
	if err != nil {
		log.Fatalf("get schema %q: %v", table, err)
	}
	return schema
}

func compileFilter(expr string, schema value.TableSchema, dialect escaper.Dialect) string {
	if expr == "" {
		return ""
	}
	filters := []value.Filter{{ColumnIndex: value.RawSentinel, Operator: value.OpRAW, Value: expr}}
	where, _ := filter.Compile(filters, schema, dialect)
	return where
}

func dialectOf(d connstr.Driver) escaper.Dialect {
	switch d {
	case connstr.DriverPostgres:
		return escaper.DialectPostgres
	case connstr.DriverMySQL:
		return escaper.DialectMySQL
	default:
		return escaper.DialectSQLite
	}
}

// benchCounter adapts a drv.Conn into paging.RowCounter/paging.PageLoader,
// the same seam session.connCounter uses to let paging stay driver-agnostic.
type benchCounter struct {
	conn    drv.Conn
	dialect escaper.Dialect
}

func (c benchCounter) EstimateRowCount(ctx context.Context, table string) (int64, bool) {
	return c.conn.EstimateRowCount(ctx, table)
}

func (c benchCounter) CountRows(ctx context.Context, table, where string, _ []any) (int64, error) {
	sql := "SELECT COUNT(*) FROM " + escaper.QualifiedTable(c.dialect, table)
	if where != "" {
		sql += " WHERE " + where
	}
	rs, err := c.conn.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return 0, fmt.Errorf("lacebench: COUNT(*) returned no rows")
	}
	return rs.Rows[0][0].Int, nil
}

func (c benchCounter) LoadPage(ctx context.Context, table, where string, _ []any, orderBy string, desc bool, offset, limit int64) ([]value.Row, error) {
	if where == "" {
		rs, err := c.conn.QueryPage(ctx, table, offset, limit, orderBy, desc)
		if err != nil {
			return nil, err
		}
		return rs.Rows, nil
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	sql := "SELECT * FROM " + escaper.QualifiedTable(c.dialect, table) + " WHERE " + where
	if orderBy != "" {
		sql += " ORDER BY " + escaper.Identifier(c.dialect, orderBy) + " " + dir
	}
	sql += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	rs, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}

func runPagingDemo(ctx context.Context, conn drv.Conn, dialect escaper.Dialect, table, where string, pageSize int64, timeout time.Duration) *paging.Window {
	counter := benchCounter{conn: conn, dialect: dialect}
	w := paging.NewWindow(pageSize)

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := w.Open(opCtx, counter, counter, table, where, nil, "", false, 0); err != nil {
		log.Fatalf("open paging window: %v", err)
	}
	return w
}

// runCancelDemo starts an asyncop.Operation running QueryPage against table,
// cancels it shortly after starting, and reports the resulting state.
func runCancelDemo(ctx context.Context, conn drv.Conn, table string) {
	op := asyncop.New()
	started := op.Start(ctx, asyncop.KindQueryPage, func(workCtx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		if h, ok := conn.PrepareCancel(workCtx); ok {
			setCancel(h)
		}
		return conn.QueryPage(workCtx, table, 0, 1, "", false)
	})
	if !started {
		fmt.Println("cancel demo: operation already running, skipped")
		return
	}

	time.Sleep(5 * time.Millisecond)
	op.Cancel()

	state := op.Wait(1000)
	fmt.Printf("cancel demo: final state=%d\n", state)
}
