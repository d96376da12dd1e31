package host

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

// LocalFiles is the Files port on the local filesystem. Every path is
// resolved under Root, which is "/" on a real host.
type LocalFiles struct {
	Root string
}

// NewLocalFiles creates a Files port rooted at root. An empty root means "/".
func NewLocalFiles(root string) *LocalFiles {
	if root == "" {
		root = "/"
	}
	return &LocalFiles{Root: root}
}

func (f *LocalFiles) resolve(path string) string {
	return filepath.Join(f.Root, path)
}

// ReadFile returns the content of path
func (f *LocalFiles) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(f.resolve(path))
}

// WriteFile writes to a temporary sibling and renames it over path, so
// readers never see a partial file. An existing file keeps its owner and
// group.
func (f *LocalFiles) WriteFile(path string, content []byte, mode os.FileMode) error {
	target := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	uid, gid := -1, -1
	if info, err := os.Stat(target); err == nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			uid, gid = int(st.Uid), int(st.Gid)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".cassnode-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if uid >= 0 {
		if err := os.Lchown(tmpName, uid, gid); err != nil {
			return fmt.Errorf("failed to keep ownership of %s: %w", path, err)
		}
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Stat returns mode, type and ownership of path
func (f *LocalFiles) Stat(path string) (*FileInfo, error) {
	info, err := os.Stat(f.resolve(path))
	if err != nil {
		return nil, err
	}

	fi := &FileInfo{Mode: info.Mode().Perm(), IsDir: info.IsDir()}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		fi.Owner = userName(st.Uid)
		fi.Group = groupName(st.Gid)
	}
	return fi, nil
}

// MkdirAll creates path and any missing parents
func (f *LocalFiles) MkdirAll(path string, mode os.FileMode) error {
	target := f.resolve(path)
	if err := os.MkdirAll(target, mode); err != nil {
		return err
	}
	// MkdirAll is subject to the umask
	return os.Chmod(target, mode)
}

// Chmod sets the permission bits of path
func (f *LocalFiles) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(f.resolve(path), mode)
}

// Chown sets owner and group of path by name
func (f *LocalFiles) Chown(path, owner, group string) error {
	u, err := user.Lookup(owner)
	if err != nil {
		return fmt.Errorf("failed to resolve user %s: %w", owner, err)
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return fmt.Errorf("failed to resolve group %s: %w", group, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("invalid uid %q for %s: %w", u.Uid, owner, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return fmt.Errorf("invalid gid %q for %s: %w", g.Gid, group, err)
	}
	return os.Chown(f.resolve(path), uid, gid)
}

func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}
