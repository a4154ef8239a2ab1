package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gzwplato/omniscidb/schema"
)

func dashKey(userID int, name string) string {
	return fmt.Sprintf("%d:%s", userID, name)
}

// CreateDashboard stores a user-owned view state under a name unique per
// user and returns the assigned id.
func (c *Catalog) CreateDashboard(dd *schema.DashboardDescriptor) (int, error) {
	c.mutex.lock()
	defer c.mutex.unlock()

	if _, ok := c.dashByName[dashKey(dd.UserID, dd.Name)]; ok {
		return 0, fmt.Errorf("catalog: dashboard %s already exists for user %d",
			dd.Name, dd.UserID)
	}

	dd.ID = c.nextDashID
	dd.UpdateTime = time.Now()

	c.storeMutex.Lock()
	err := c.store.InsertDashboard(dd)
	c.storeMutex.Unlock()
	if err != nil {
		return 0, err
	}

	c.nextDashID++
	c.dashByID[dd.ID] = dd
	c.dashByName[dashKey(dd.UserID, dd.Name)] = dd
	return dd.ID, nil
}

// ReplaceDashboard overwrites an existing dashboard's state and metadata
// in place, keeping its id.
func (c *Catalog) ReplaceDashboard(dd *schema.DashboardDescriptor) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	old, ok := c.dashByID[dd.ID]
	if !ok {
		return fmt.Errorf("catalog: dashboard %d does not exist", dd.ID)
	}

	dd.UpdateTime = time.Now()
	c.storeMutex.Lock()
	err := c.store.UpdateDashboard(dd)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.dashByName, dashKey(old.UserID, old.Name))
	c.dashByID[dd.ID] = dd
	c.dashByName[dashKey(dd.UserID, dd.Name)] = dd
	return nil
}

func (c *Catalog) Dashboard(userID int, name string) *schema.DashboardDescriptor {
	defer c.mutex.rlock()()

	dd, ok := c.dashByName[dashKey(userID, name)]
	if !ok {
		return nil
	}
	return dd.Copy()
}

func (c *Catalog) DashboardByID(id int) *schema.DashboardDescriptor {
	defer c.mutex.rlock()()

	dd, ok := c.dashByID[id]
	if !ok {
		return nil
	}
	return dd.Copy()
}

func (c *Catalog) DeleteDashboard(id int) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	dd, ok := c.dashByID[id]
	if !ok {
		return fmt.Errorf("catalog: dashboard %d does not exist", id)
	}

	c.storeMutex.Lock()
	err := c.store.DeleteDashboard(id)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.dashByID, id)
	delete(c.dashByName, dashKey(dd.UserID, dd.Name))
	return nil
}

// linkHash is the short shareable address of a view state.
func linkHash(viewState string) string {
	sum := sha1.Sum([]byte(viewState))
	return hex.EncodeToString(sum[:])[:8]
}

// CreateLink stores a shareable link for a view state, returning the
// link string. Identical view states share one link.
func (c *Catalog) CreateLink(userID int, viewState, metadata string) (string, error) {
	c.mutex.lock()
	defer c.mutex.unlock()

	link := linkHash(viewState)
	if ld, ok := c.linkByStr[link]; ok {
		return ld.Link, nil
	}

	ld := &schema.LinkDescriptor{
		LinkID:     c.nextLinkID,
		UserID:     userID,
		Link:       link,
		ViewState:  viewState,
		Metadata:   metadata,
		UpdateTime: time.Now(),
	}
	c.storeMutex.Lock()
	err := c.store.InsertLink(ld)
	c.storeMutex.Unlock()
	if err != nil {
		return "", err
	}

	c.nextLinkID++
	c.linkByID[ld.LinkID] = ld
	c.linkByStr[ld.Link] = ld
	return link, nil
}

func (c *Catalog) Link(link string) *schema.LinkDescriptor {
	defer c.mutex.rlock()()

	ld, ok := c.linkByStr[link]
	if !ok {
		return nil
	}
	return ld.Copy()
}

func (c *Catalog) LinkByID(id int) *schema.LinkDescriptor {
	defer c.mutex.rlock()()

	ld, ok := c.linkByID[id]
	if !ok {
		return nil
	}
	return ld.Copy()
}
