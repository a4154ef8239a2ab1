package catalog

import (
	"fmt"
	"math"

	"github.com/gzwplato/omniscidb/schema"
)

// SPI values bind expressions to columns by declared position. Logical
// columns get their 1-based sequence position; a physical sub-column i
// of the geo column at sequence position c gets spiMagic1+spiMagic2*(c+1)+i,
// keeping the two ranges disjoint.
const (
	spiMagic1 = math.MaxUint32 / 4
	spiMagic2 = 8
)

// GeoPhysicalSPI encodes the SPI of physical sub-column i (0 based) of
// the geo column at 0 based sequence position c.
func GeoPhysicalSPI(c, i int) int {
	return spiMagic1 + spiMagic2*(c+1) + i
}

// spiColumns is the declared-order column list SPIs index into: system,
// virtual, and geo physical columns are excluded.
func (c *Catalog) spiColumns(tableID int) []*schema.ColumnDescriptor {
	var cols []*schema.ColumnDescriptor
	for _, cd := range c.columnsInOrder(tableID) {
		if cd.IsSystem || cd.IsVirtual || cd.IsGeoPhys {
			continue
		}
		cols = append(cols, cd)
	}
	return cols
}

// SPI returns the positional index of a column; geo physical sub-columns
// are encoded against their parent's position.
func (c *Catalog) SPI(tableID, columnID int) (int, error) {
	defer c.mutex.rlock()()

	if _, ok := c.columnsByID[tableID]; !ok {
		panic(fmt.Sprintf("catalog: SPI lookup on unknown table %d", tableID))
	}

	cols := c.spiColumns(tableID)
	for seq, cd := range cols {
		if cd.ColumnID == columnID {
			return seq + 1, nil
		}
	}

	// Geo physical sub-columns follow their parent immediately in column
	// id order.
	for seq, cd := range cols {
		n := cd.Type.PhysicalCols()
		if n > 0 && columnID > cd.ColumnID && columnID <= cd.ColumnID+n {
			return GeoPhysicalSPI(seq, columnID-cd.ColumnID-1), nil
		}
	}
	return 0, fmt.Errorf("catalog: table %d has no column %d", tableID, columnID)
}

// ColumnIDBySPI inverts SPI assignment; it must agree exactly with how
// SPIs were handed out at creation time.
func (c *Catalog) ColumnIDBySPI(tableID, spi int) (int, error) {
	defer c.mutex.rlock()()

	if _, ok := c.columnsByID[tableID]; !ok {
		panic(fmt.Sprintf("catalog: SPI lookup on unknown table %d", tableID))
	}
	cols := c.spiColumns(tableID)

	if spi >= spiMagic1 {
		seq := (spi-spiMagic1)/spiMagic2 - 1
		phys := (spi - spiMagic1) % spiMagic2
		if seq < 0 || seq >= len(cols) {
			return 0, fmt.Errorf("catalog: table %d has no column at position %d",
				tableID, seq+1)
		}
		cd := cols[seq]
		if phys >= cd.Type.PhysicalCols() {
			return 0, fmt.Errorf("catalog: column %s has no physical sub-column %d",
				cd.Name, phys)
		}
		return cd.ColumnID + 1 + phys, nil
	}

	if spi < 1 || spi > len(cols) {
		return 0, fmt.Errorf("catalog: table %d has no column at position %d",
			tableID, spi)
	}
	return cols[spi-1].ColumnID, nil
}
