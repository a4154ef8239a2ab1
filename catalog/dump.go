package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gzwplato/omniscidb/schema"
)

// DumpCreateTable renders a deterministic, re-parseable CREATE statement
// for one table from its descriptors alone.
func (c *Catalog) DumpCreateTable(name string) (string, error) {
	defer c.mutex.rlock()()

	td, ok := c.tableByName[name]
	if !ok {
		return "", fmt.Errorf("catalog: table %s does not exist", name)
	}

	if td.IsView {
		return fmt.Sprintf("CREATE VIEW %s AS %s;", td.Name, td.ViewSQL), nil
	}

	var b strings.Builder
	if td.IsForeign() {
		fmt.Fprintf(&b, "CREATE FOREIGN TABLE %s (", td.Name)
	} else {
		fmt.Fprintf(&b, "CREATE TABLE %s (", td.Name)
	}

	first := true
	for _, cd := range c.columnsInOrder(td.TableID) {
		if cd.IsSystem || cd.IsVirtual || cd.IsGeoPhys {
			continue
		}
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, "\n  %s %s", cd.Name, cd.Type)
		if cd.Type.NotNull {
			b.WriteString(" NOT NULL")
		}
		if cd.Default != "" {
			fmt.Fprintf(&b, " DEFAULT %s", cd.Default)
		}
	}
	b.WriteString(")")

	opts := c.tableOptions(td)
	if len(opts) > 0 {
		fmt.Fprintf(&b, " WITH (%s)", strings.Join(opts, ", "))
	}
	b.WriteString(";")
	return b.String(), nil
}

func (c *Catalog) tableOptions(td *schema.TableDescriptor) []string {
	var opts []string
	if td.FragmentSize > 0 {
		opts = append(opts, fmt.Sprintf("FRAGMENT_SIZE=%d", td.FragmentSize))
	}
	if td.MaxRows > 0 {
		opts = append(opts, fmt.Sprintf("MAX_ROWS=%d", td.MaxRows))
	}
	if td.NShards > 0 {
		opts = append(opts, fmt.Sprintf("SHARD_COUNT=%d", td.NShards))
	}
	if td.IsForeign() {
		if fs, ok := c.svrByID[td.ForeignServerID]; ok {
			opts = append(opts, fmt.Sprintf("SERVER='%s'", fs.Name))
		}
	}

	keys := make([]string, 0, len(td.Options))
	for key := range td.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		opts = append(opts, fmt.Sprintf("%s='%s'", key, td.Options[key]))
	}
	return opts
}

// DumpSchema renders CREATE statements for every table in name order;
// physical shard tables are folded into their logical table.
func (c *Catalog) DumpSchema() (string, error) {
	unlock := c.mutex.rlock()
	physical := map[int]bool{}
	for _, physIDs := range c.logToPhys {
		for _, id := range physIDs {
			physical[id] = true
		}
	}

	var names []string
	for name, td := range c.tableByName {
		if physical[td.TableID] {
			continue
		}
		names = append(names, name)
	}
	unlock()
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		stmt, err := c.DumpCreateTable(name)
		if err != nil {
			return "", err
		}
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	return b.String(), nil
}
