package physical

// TableScanInfo lists the scan steps of a plan with the table each one reads
// and the columns it projects. All slices have the same length.
type TableScanInfo struct {
	Steps      []string
	TableNames []string
	// Columns holds the projected column indices per scan. It is empty for
	// scans that read every column.
	Columns [][]int
}

// GetTableScanInfo extracts the scan steps of a plan in the order they appear
// in the text. Steps are returned as written, indentation included. Lines
// that are not scans are skipped without being parsed.
func GetTableScanInfo(plan string) (TableScanInfo, error) {
	var info TableScanInfo

	for _, line := range splitLines(plan) {
		op, ok := operatorName(line)
		if !ok || !isScanOperator(op) {
			continue
		}

		step, err := parseStep(line)
		if err != nil {
			return TableScanInfo{}, err
		}
		table, err := tableName(step)
		if err != nil {
			return TableScanInfo{}, err
		}

		columns := []int{}
		if isBindableScan(step) {
			if columns, err = projectedColumns(step); err != nil {
				return TableScanInfo{}, err
			}
		}

		info.Steps = append(info.Steps, line)
		info.TableNames = append(info.TableNames, table)
		info.Columns = append(info.Columns, columns)
	}
	return info, nil
}
