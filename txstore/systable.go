package txstore

// System table ids. Reserved below FirstNonSystemId, hard-coded so
// bootstrap and replay always agree on identity (spec.md §4.10).
const (
	StTableId TableId = iota + 1
	StColumnId
	StSequenceId
	StIndexId
	StConstraintId
	StModuleId
	StClientId
	StVarId
	StScheduledId
	StRowLevelSecurityId
	StViewId
	StViewParamId
	StViewColumnId
	StConnectionCredentialsId
)

// systemTableSchemas returns the hard-coded schemas for every table the
// system catalog installs at bootstrap, self-describing in the sense
// that st_table and st_column between them can describe every table
// listed here, including themselves (spec.md §4.10).
func systemTableSchemas() []*TableSchema {
	str := func(name string) ColumnDef { return ColumnDef{Name: name, Type: TypeString} }
	i64 := func(name string) ColumnDef { return ColumnDef{Name: name, Type: TypeInt64} }
	b := func(name string) ColumnDef { return ColumnDef{Name: name, Type: TypeBool} }
	bytes := func(name string) ColumnDef { return ColumnDef{Name: name, Type: TypeBytes} }

	return []*TableSchema{
		{
			Id: StTableId, Name: "st_table", Type: TableTypeSystem,
			Columns:    []ColumnDef{i64("table_id"), str("table_name"), i64("table_type"), i64("table_access")},
			PrimaryKey: ColList{0},
		},
		{
			Id: StColumnId, Name: "st_column", Type: TableTypeSystem,
			Columns: []ColumnDef{i64("table_id"), i64("col_pos"), str("col_name"), i64("col_type"), b("nullable")},
		},
		{
			Id: StSequenceId, Name: "st_sequence", Type: TableTypeSystem,
			Columns: []ColumnDef{
				i64("sequence_id"), str("sequence_name"), i64("table_id"), i64("col_pos"),
				i64("increment"), i64("start"), i64("min_value"), i64("max_value"), i64("allocated"),
			},
			PrimaryKey: ColList{0},
		},
		{
			Id: StIndexId, Name: "st_index", Type: TableTypeSystem,
			Columns: []ColumnDef{
				i64("index_id"), str("index_name"), i64("table_id"), bytes("columns"), b("is_unique"), str("index_algo"),
			},
			PrimaryKey: ColList{0},
		},
		{
			Id: StConstraintId, Name: "st_constraint", Type: TableTypeSystem,
			Columns: []ColumnDef{
				i64("constraint_id"), str("constraint_name"), i64("table_id"), bytes("columns"), i64("constraint_kind"), i64("index_id"),
			},
			PrimaryKey: ColList{0},
		},
		{
			Id: StModuleId, Name: "st_module", Type: TableTypeSystem,
			Columns: []ColumnDef{
				i64("database_id"), bytes("program_hash"), str("module_version"), i64("owner_identity"),
			},
		},
		{
			Id: StClientId, Name: "st_client", Type: TableTypeSystem,
			Columns: []ColumnDef{bytes("identity"), bytes("connection_id"), i64("connected_at")},
		},
		{
			Id: StVarId, Name: "st_var", Type: TableTypeSystem,
			Columns:    []ColumnDef{str("name"), str("value")},
			PrimaryKey: ColList{0},
		},
		{
			Id: StScheduledId, Name: "st_scheduled", Type: TableTypeSystem,
			Columns: []ColumnDef{
				i64("schedule_id"), i64("table_id"), str("reducer_name"), str("schedule_name"), i64("at_col"),
			},
			PrimaryKey: ColList{0},
		},
		{
			Id: StRowLevelSecurityId, Name: "st_row_level_security", Type: TableTypeSystem,
			Columns: []ColumnDef{i64("table_id"), str("sql")},
		},
		{
			Id: StViewId, Name: "st_view", Type: TableTypeSystem,
			Columns:    []ColumnDef{i64("view_id"), str("view_name"), str("definition")},
			PrimaryKey: ColList{0},
		},
		{
			Id: StViewParamId, Name: "st_view_param", Type: TableTypeSystem,
			Columns: []ColumnDef{i64("view_id"), i64("param_pos"), str("param_name"), i64("param_type")},
		},
		{
			Id: StViewColumnId, Name: "st_view_column", Type: TableTypeSystem,
			Columns: []ColumnDef{i64("view_id"), i64("col_pos"), str("col_name"), i64("col_type")},
		},
		{
			Id: StConnectionCredentialsId, Name: "st_connection_credentials", Type: TableTypeSystem,
			Columns: []ColumnDef{bytes("connection_id"), bytes("identity_token"), i64("issued_at")},
		},
	}
}
