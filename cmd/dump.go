package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gzwplato/omniscidb/catalog"
)

var (
	dumpCmd = &cobra.Command{
		Use:   "dump [table...]",
		Short: "Dump the schema of a database as CREATE statements",
		RunE:  dumpRun,
	}

	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a database",
		RunE:  tablesRun,
	}
)

func init() {
	omnisciCmd.AddCommand(dumpCmd)
	omnisciCmd.AddCommand(tablesCmd)
}

func dumpRun(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() {
		catalog.Remove(cat.DBMetadata().Name)
		cat.Close()
	}()

	if len(args) == 0 {
		s, err := cat.DumpSchema()
		if err != nil {
			return err
		}
		fmt.Print(s)
		return nil
	}

	for _, name := range args {
		s, err := cat.DumpCreateTable(name)
		if err != nil {
			return err
		}
		fmt.Println(s)
	}
	return nil
}

func tablesRun(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() {
		catalog.Remove(cat.DBMetadata().Name)
		cat.Close()
	}()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Name", "ID", "Columns", "Storage", "Epoch"})
	for _, td := range cat.Tables() {
		storage := "local"
		if td.IsView {
			storage = "view"
		} else if td.IsForeign() {
			storage = "foreign"
		}
		tw.Append([]string{
			td.Name,
			strconv.Itoa(td.TableID),
			strconv.Itoa(td.NColumns),
			storage,
			strconv.Itoa(int(cat.TableEpoch(td.TableID))),
		})
	}
	tw.Render()
	return nil
}
