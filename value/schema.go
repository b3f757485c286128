package value

// Column describes one field of a TableSchema. LogicalType is inferred from
// DriverTypeName by substring match, per driver-specific type tables.
type Column struct {
	Name          string
	LogicalType   LogicalType
	DriverType    string
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	DefaultExpr   string // empty means absent
	HasDefault    bool
	ForeignKeyRef string // "table.column", empty means absent
	HasForeignKey bool
	MaxLength     int
	HasMaxLength  bool
}

// LogicalType is the driver-independent type a Column's native type name
// maps to.
type LogicalType uint8

const (
	LogicalText LogicalType = iota
	LogicalInt
	LogicalFloat
	LogicalBool
	LogicalBlob
	LogicalDate
	LogicalTimestamp
)

func (t LogicalType) String() string {
	switch t {
	case LogicalInt:
		return "INT"
	case LogicalFloat:
		return "FLOAT"
	case LogicalBool:
		return "BOOL"
	case LogicalBlob:
		return "BLOB"
	case LogicalDate:
		return "DATE"
	case LogicalTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Index describes one index on a table, as discovered from the driver's
// catalog introspection.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey describes a single foreign-key constraint.
type ForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// TableSchema is the driver-independent description of one table.
//
// QualifiedName may be "schema.table" (PostgreSQL) or a bare "table"
// (SQLite, MySQL — MySQL's schema is always the connection's current
// database).
type TableSchema struct {
	QualifiedName       string
	Columns             []Column
	Indexes             []Index
	ForeignKeys         []ForeignKey
	ApproxRowCount      int64
	HasApproxRowCount   bool
	RowCountApproximate bool
}

// ColumnCount returns the number of columns, used throughout to bound
// cursor/column navigation (§4.11).
func (s TableSchema) ColumnCount() int { return len(s.Columns) }

// ColumnIndex returns the index of the column with the given name, or -1.
func (s TableSchema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is an ordered sequence of Values; len(Row) always equals the owning
// schema's column count.
type Row []Value

// Clone deep-copies a row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for i, v := range r {
		out[i] = v.Copy()
	}
	return out
}

// ResultSet is the outcome of a query or exec. RowsAffected is -1 for
// SELECT. TotalRows is the full matching count (possibly approximate).
// SourceTable is the detected single FROM target for SELECTs; when unknown,
// cell edits are disabled by the caller.
type ResultSet struct {
	Columns      []Column
	Rows         []Row
	TotalRows    int64
	RowsAffected int64
	HasMore      bool
	SourceTable  string
	HasSource    bool
	Err          error
}

// NewEmptyResultSet returns a zero-row, non-nil result set: §7 requires an
// empty result to be a length-zero slice, never a nil one, so callers can
// tell "no rows" apart from "error".
func NewEmptyResultSet(columns []Column) ResultSet {
	return ResultSet{Columns: columns, Rows: []Row{}, RowsAffected: -1}
}

// SortDirection is ASC or DESC for one SortEntry.
type SortDirection uint8

const (
	SortAsc SortDirection = iota
	SortDesc
)

// SortEntry is one column of a multi-column sort. MaxSortColumns bounds the
// number of entries a caller may accumulate (§3).
const MaxSortColumns = 16

type SortEntry struct {
	ColumnIndex int
	Direction   SortDirection
}

// MaxPKColumns bounds the number of primary-key columns supported by
// update/delete composition (§6).
const MaxPKColumns = 16
