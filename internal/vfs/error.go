package vfs

import "errors"

var (
	// ErrNotFound occurs when a node does not exist or was destroyed between
	// its lookup and the acquisition of its lock.
	ErrNotFound = errors.New("no such node")

	// ErrDestroyed occurs when a directory died while it was being walked.
	ErrDestroyed = errors.New("node destroyed")

	// ErrNotDir occurs when a directory operation is issued on a node that is
	// not a directory, or a path continues below such a node.
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir occurs when a non-directory operation is issued on a directory.
	ErrIsDir = errors.New("is a directory")

	// ErrNotEmpty occurs when a directory holds more than "." and "..".
	ErrNotEmpty = errors.New("directory not empty")

	// ErrExists occurs when a directory already holds an entry of that name.
	ErrExists = errors.New("node already exists")

	// ErrPermission occurs when a caller may not change a node's attributes.
	ErrPermission = errors.New("operation not permitted")

	// ErrAccess occurs when a caller lacks the access bits for a node.
	ErrAccess = errors.New("permission denied")

	// ErrInvalidArgument occurs for malformed input, such as relative paths,
	// control characters in names or slashes inside names to be created.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNameTooLong occurs when a name exceeds [MaxNameLen].
	ErrNameTooLong = errors.New("name too long")

	// ErrRealPath occurs when a path leaves the virtual tree at its root and
	// has to be resolved by the real filesystem instead.
	ErrRealPath = errors.New("path belongs to the real filesystem")

	// ErrNoMemory occurs when the node store cannot grow any further, or a
	// write would grow a file beyond [MaxFileSize].
	ErrNoMemory = errors.New("out of memory")

	// ErrNotSupported occurs when a node kind does not implement the
	// requested operation.
	ErrNotSupported = errors.New("operation not supported")

	// ErrDevice occurs when a driver answered a request with an error.
	ErrDevice = errors.New("device error")
)
