//go:build !linux

package listener

import "io/fs"

func nlink(info fs.FileInfo) uint64 {
	return 2
}
