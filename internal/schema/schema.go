// Package schema provides the principal schematics for all other packages. It
// defines the identities (processes, threads, users and groups) that the
// scheduler, the VFS and the request table share, along with the mode bits
// describing VFS nodes. The package serves as a foundational layer for the
// kernel core throughout the codebase.
package schema

import (
	"slices"
	"strconv"
)

// Pid is a process identifier.
type Pid int32

// Tid is a thread identifier.
type Tid int32

// UID is a user identifier.
type UID uint32

// GID is a group identifier.
type GID uint32

const (
	// KernelPid is the pid used for operations issued by the kernel itself.
	// It bypasses all permission checks.
	KernelPid Pid = 0

	// InvalidPid marks the absence of a process.
	InvalidPid Pid = -1

	// InvalidTid marks the absence of a thread, e.g. a free request slot.
	InvalidTid Tid = -1

	// RootUID is the user identifier of the superuser.
	RootUID UID = 0

	// RootGID is the group identifier of the superuser.
	RootGID GID = 0

	// NoUID leaves the user of a node unchanged on chown.
	NoUID UID = ^UID(0)

	// NoGID leaves the group of a node unchanged on chown.
	NoGID GID = ^GID(0)
)

func (p Pid) String() string {
	return strconv.Itoa(int(p))
}

func (t Tid) String() string {
	return strconv.Itoa(int(t))
}

// Credentials are the effective identities of a process.
type Credentials struct {
	EUID   UID
	EGID   GID
	Groups []GID
}

// IsRoot returns whether the credentials belong to the superuser.
func (c Credentials) IsRoot() bool {
	return c.EUID == RootUID
}

// IsMember returns whether the credentials carry the given group, either as
// effective group or as one of the supplementary groups.
func (c Credentials) IsMember(gid GID) bool {
	return c.EGID == gid || slices.Contains(c.Groups, gid)
}
