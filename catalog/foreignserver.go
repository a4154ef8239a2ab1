package catalog

import (
	"fmt"
	"io"
	"time"

	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/schema"
)

// CreateForeignServer registers a named external storage endpoint. With
// ifNotExists set, creating an existing name is a no-op.
func (c *Catalog) CreateForeignServer(fs *schema.ForeignServer, ifNotExists bool) error {
	if !c.flgs.GetFlag(flags.EnableFSI) {
		return fmt.Errorf("catalog: foreign storage interface is disabled")
	}

	c.mutex.lock()
	defer c.mutex.unlock()

	return c.createForeignServerLocked(fs, ifNotExists)
}

func (c *Catalog) createForeignServerLocked(fs *schema.ForeignServer,
	ifNotExists bool) error {

	if _, ok := c.svrByName[fs.Name]; ok {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("catalog: foreign server %s already exists", fs.Name)
	}

	fs.ID = c.nextSvrID
	if fs.CreationTime.IsZero() {
		// Stored times survive a JSON round trip; keep them comparable to
		// what the store hands back.
		fs.CreationTime = time.Now().UTC().Truncate(time.Second)
	}

	c.storeMutex.Lock()
	err := c.store.InsertForeignServer(fs)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	c.nextSvrID++
	c.svrByName[fs.Name] = fs
	c.svrByID[fs.ID] = fs
	return nil
}

// ForeignServer looks up a server by name in the cache; nil when
// unknown.
func (c *Catalog) ForeignServer(name string) *schema.ForeignServer {
	defer c.mutex.rlock()()

	fs, ok := c.svrByName[name]
	if !ok {
		return nil
	}
	return fs.Copy()
}

func (c *Catalog) ForeignServerByID(id int) *schema.ForeignServer {
	defer c.mutex.rlock()()

	fs, ok := c.svrByID[id]
	if !ok {
		return nil
	}
	return fs.Copy()
}

// ForeignServerSkipCache reads a server straight from the metadata store,
// bypassing the descriptor cache; verification paths use it to check the
// cache against durable state.
func (c *Catalog) ForeignServerSkipCache(name string) (*schema.ForeignServer, error) {
	c.storeMutex.Lock()
	defer c.storeMutex.Unlock()

	fs, err := c.store.ForeignServerByName(name)
	if err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return fs, nil
}

func (c *Catalog) ForeignServers() []*schema.ForeignServer {
	defer c.mutex.rlock()()

	svrs := make([]*schema.ForeignServer, 0, len(c.svrByName))
	for _, fs := range c.svrByName {
		svrs = append(svrs, fs.Copy())
	}
	return svrs
}

func (c *Catalog) updateForeignServerLocked(fs *schema.ForeignServer,
	mutate func(nfs *schema.ForeignServer)) error {

	nfs := fs.Copy()
	mutate(nfs)

	c.storeMutex.Lock()
	err := c.store.UpdateForeignServer(nfs)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.svrByName, fs.Name)
	c.svrByName[nfs.Name] = nfs
	c.svrByID[nfs.ID] = nfs
	return nil
}

func (c *Catalog) RenameForeignServer(oldName, newName string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	fs, ok := c.svrByName[oldName]
	if !ok {
		return fmt.Errorf("catalog: foreign server %s does not exist", oldName)
	}
	if _, ok := c.svrByName[newName]; ok {
		return fmt.Errorf("catalog: foreign server %s already exists", newName)
	}
	return c.updateForeignServerLocked(fs, func(nfs *schema.ForeignServer) {
		nfs.Name = newName
	})
}

func (c *Catalog) SetForeignServerOwner(name string, ownerID int) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	fs, ok := c.svrByName[name]
	if !ok {
		return fmt.Errorf("catalog: foreign server %s does not exist", name)
	}
	return c.updateForeignServerLocked(fs, func(nfs *schema.ForeignServer) {
		nfs.OwnerUserID = ownerID
	})
}

func (c *Catalog) SetForeignServerDataWrapper(name, dataWrapper string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	fs, ok := c.svrByName[name]
	if !ok {
		return fmt.Errorf("catalog: foreign server %s does not exist", name)
	}
	return c.updateForeignServerLocked(fs, func(nfs *schema.ForeignServer) {
		nfs.DataWrapper = dataWrapper
	})
}

func (c *Catalog) SetForeignServerOptions(name string, options map[string]string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	fs, ok := c.svrByName[name]
	if !ok {
		return fmt.Errorf("catalog: foreign server %s does not exist", name)
	}
	return c.updateForeignServerLocked(fs, func(nfs *schema.ForeignServer) {
		nfs.Options = options
	})
}

// DropForeignServer removes a server definition; it fails while any
// foreign table still references the server.
func (c *Catalog) DropForeignServer(name string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	fs, ok := c.svrByName[name]
	if !ok {
		return fmt.Errorf("catalog: foreign server %s does not exist", name)
	}
	for _, td := range c.tableByID {
		if td.IsForeign() && td.ForeignServerID == fs.ID {
			return fmt.Errorf("catalog: foreign server %s is in use by table %s",
				name, td.Name)
		}
	}

	c.storeMutex.Lock()
	err := c.store.DeleteForeignServer(fs.ID)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.svrByName, fs.Name)
	delete(c.svrByID, fs.ID)
	return nil
}
