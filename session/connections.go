package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/strarena"
)

// ConnectionsFileName is the saved-connections tree's fixed file name within
// the caller's config directory.
const ConnectionsFileName = "connections.json"

// SavedConnection is one leaf of the connections tree: enough to rebuild a
// connstr.ConnString without a password ever having been written to disk in
// plain form next to it, unless the user explicitly opted a specific
// connection into password storage.
type SavedConnection struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Driver        connstr.Driver   `json:"driver"`
	Host          string           `json:"host,omitempty"`
	Port          int              `json:"port,omitempty"`
	HasPort       bool             `json:"has_port,omitempty"`
	User          string           `json:"user,omitempty"`
	Database      string           `json:"database"`
	Password      string           `json:"password,omitempty"`
	StorePassword bool             `json:"store_password,omitempty"`
	Options       []connstr.Option `json:"options,omitempty"`
}

// ConnString rebuilds the full connstr.ConnString this entry describes.
func (sc SavedConnection) ConnString() connstr.ConnString {
	cs := connstr.ConnString{
		Driver:   sc.Driver,
		Host:     sc.Host,
		Port:     sc.Port,
		HasPort:  sc.HasPort,
		Database: sc.Database,
		Options:  sc.Options,
	}
	if sc.User != "" {
		cs.HasUser = true
		cs.User = sc.User
	}
	if sc.StorePassword && sc.Password != "" {
		cs.HasPassword = true
		cs.Password = sc.Password
	}
	return cs
}

// WipePassword zeroes sc.Password in place and clears StorePassword, so a
// caller that has already used it to dial (via ConnString) doesn't keep a
// readable copy around for the rest of its lifetime. Only call this on a
// SavedConnection the caller is done with entirely: it shares its Password
// field's backing bytes with any ConnectionsFile tree it came from, so
// wiping it here zeroes that tree's copy too, and the tree must not be
// passed to SaveConnections afterward.
func (sc *SavedConnection) WipePassword() {
	strarena.WipeString(&sc.Password)
	sc.StorePassword = false
}

// WipeConnectionsFile zeroes every stored password in f's tree in place.
// Intended for a caller that has already called Flatten (or otherwise
// extracted what it needs) and will not call SaveConnections on f again in
// this process.
func WipeConnectionsFile(f *ConnectionsFile) {
	wipeFolder(&f.Root)
}

func wipeFolder(folder *Folder) {
	for i := range folder.Connections {
		folder.Connections[i].WipePassword()
	}
	for i := range folder.Folders {
		wipeFolder(&folder.Folders[i])
	}
}

// Folder is one node of the connections tree: a named grouping that holds
// both child folders and leaf connections.
type Folder struct {
	Name        string            `json:"name"`
	Folders     []Folder          `json:"folders,omitempty"`
	Connections []SavedConnection `json:"connections,omitempty"`
}

// ConnectionsFile is the root of connections.json.
type ConnectionsFile struct {
	Version int    `json:"version"`
	Root    Folder `json:"root"`
}

// Find locates a saved connection by UUID anywhere in the tree.
func (f ConnectionsFile) Find(id string) (SavedConnection, bool) {
	return findIn(f.Root, id)
}

func findIn(folder Folder, id string) (SavedConnection, bool) {
	for _, c := range folder.Connections {
		if c.ID == id {
			return c, true
		}
	}
	for _, sub := range folder.Folders {
		if sc, ok := findIn(sub, id); ok {
			return sc, true
		}
	}
	return SavedConnection{}, false
}

// Flatten returns every saved connection in the tree as a connection_id ->
// ConnString map, the shape session.Restore consumes directly.
func (f ConnectionsFile) Flatten() map[string]connstr.ConnString {
	out := map[string]connstr.ConnString{}
	flattenInto(f.Root, out)
	return out
}

func flattenInto(folder Folder, out map[string]connstr.ConnString) {
	for _, c := range folder.Connections {
		out[c.ID] = c.ConnString()
	}
	for _, sub := range folder.Folders {
		flattenInto(sub, out)
	}
}

// LoadConnections reads connections.json from path, returning an empty tree
// if the file doesn't exist yet.
func LoadConnections(path string) (ConnectionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConnectionsFile{Version: FileVersion}, nil
		}
		return ConnectionsFile{}, fmt.Errorf("session: read connections file: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return ConnectionsFile{}, fmt.Errorf("session: connections file exceeds %d bytes", MaxFileSize)
	}
	var f ConnectionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return ConnectionsFile{}, fmt.Errorf("session: parse connections file: %w", err)
	}
	return f, nil
}

// SaveConnections writes f to path with mode 0600: a saved connection may
// carry a password when the user opted in, so this file gets the same
// permissions treatment as the session file regardless of whether any
// entry actually stores one.
func SaveConnections(path string, f ConnectionsFile) error {
	f.Version = FileVersion
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal connections file: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".connections-*.tmp")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
