package schema

import (
	"golang.org/x/sys/unix"
)

// Mode holds the type and permission bits of a VFS node.
type Mode uint32

const (
	ModeType Mode = unix.S_IFMT
	ModePerm Mode = 0o7777

	ModeDir      Mode = unix.S_IFDIR
	ModeFile     Mode = unix.S_IFREG
	ModeLink     Mode = unix.S_IFLNK
	ModeCharDev  Mode = unix.S_IFCHR
	ModeBlockDev Mode = unix.S_IFBLK

	ModeUserRead   Mode = unix.S_IRUSR
	ModeUserWrite  Mode = unix.S_IWUSR
	ModeUserExec   Mode = unix.S_IXUSR
	ModeGroupRead  Mode = unix.S_IRGRP
	ModeGroupWrite Mode = unix.S_IWGRP
	ModeGroupExec  Mode = unix.S_IXGRP
	ModeOtherRead  Mode = unix.S_IROTH
	ModeOtherWrite Mode = unix.S_IWOTH
	ModeOtherExec  Mode = unix.S_IXOTH

	// DefaultDirPerms are the permissions of newly created directories.
	DefaultDirPerms Mode = 0o755

	// DefaultFilePerms are the permissions of newly created files.
	DefaultFilePerms Mode = 0o644

	// DefaultLinkPerms are the permissions of links.
	DefaultLinkPerms Mode = 0o777

	// DefaultDevPerms are the permissions of device nodes.
	DefaultDevPerms Mode = 0o666
)

// Type returns the type bits of the mode.
func (m Mode) Type() Mode {
	return m & ModeType
}

// Perm returns the permission bits of the mode.
func (m Mode) Perm() Mode {
	return m & ModePerm
}

// IsDir returns whether the mode describes a directory.
func (m Mode) IsDir() bool {
	return m.Type() == ModeDir
}

// IsFile returns whether the mode describes a regular file.
func (m Mode) IsFile() bool {
	return m.Type() == ModeFile
}

// IsLink returns whether the mode describes a link.
func (m Mode) IsLink() bool {
	return m.Type() == ModeLink
}

// IsDevice returns whether the mode describes a driver-backed device.
func (m Mode) IsDevice() bool {
	t := m.Type()

	return t == ModeCharDev || t == ModeBlockDev
}

// String renders the mode in the familiar "drwxr-xr-x" form.
func (m Mode) String() string {
	var b [10]byte

	switch m.Type() {
	case ModeDir:
		b[0] = 'd'
	case ModeLink:
		b[0] = 'l'
	case ModeCharDev:
		b[0] = 'c'
	case ModeBlockDev:
		b[0] = 'b'
	default:
		b[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i := range 9 {
		if m&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		} else {
			b[i+1] = '-'
		}
	}

	return string(b[:])
}
