package api

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listen binds a fresh Unix domain socket at path: any stale socket
// file is removed first, the parent directory is created if missing,
// the socket is set to mode 0660, and (when group is non-empty) its
// group ownership is set to that group — the uid is left unchanged, matching app.rs's
// set_socket_group, which only ever calls chown(path, -1, gid).
func Listen(path, group string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("api: create socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("api: remove stale socket: %w", err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("api: listen on %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o660); err != nil {
		l.Close()
		return nil, fmt.Errorf("api: chmod socket: %w", err)
	}

	if group != "" {
		if err := chownGroup(path, group); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

func chownGroup(path, group string) error {
	g, err := user.LookupGroup(group)
	if err != nil {
		return fmt.Errorf("api: lookup group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return fmt.Errorf("api: parse gid for group %q: %w", group, err)
	}
	if err := unix.Chown(path, -1, gid); err != nil {
		return fmt.Errorf("api: chown socket to group %q: %w", group, err)
	}
	return nil
}
