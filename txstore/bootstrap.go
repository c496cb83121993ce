package txstore

// Bootstrap installs the system catalog into a freshly created,
// otherwise-empty Database: one committed table per system table plus
// the self-describing st_table/st_column rows that list every system
// table (including st_table and st_column themselves). It must run
// exactly once, before any commitlog replay or user transaction
// (spec.md §4.10). Indices beyond the implicit pointer map are not
// built here — that is commitlog replay's job, run afterward.
func Bootstrap(db *Database) error {
	schemas := systemTableSchemas()

	for _, schema := range schemas {
		db.committed.CreateTable(schema)
		db.reserveObjectIdLocked(uint32(schema.Id))
	}

	stTable := db.committed.GetTable(StTableId)
	stColumn := db.committed.GetTable(StColumnId)

	for _, schema := range schemas {
		row := Row{
			Int64Value(int64(schema.Id)),
			StringValue(schema.Name),
			Int64Value(int64(schema.Type)),
			Int64Value(int64(schema.Access)),
		}
		if _, _, _, err := stTable.Insert(row, false, nil); err != nil {
			return err
		}
		for pos, col := range schema.Columns {
			crow := Row{
				Int64Value(int64(schema.Id)),
				Int64Value(int64(pos)),
				StringValue(col.Name),
				Int64Value(int64(col.Type)),
				BoolValue(col.Nullable),
			}
			if _, _, _, err := stColumn.Insert(crow, false, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
