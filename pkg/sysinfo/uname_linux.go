//go:build linux

package sysinfo

import "golang.org/x/sys/unix"

type unameInfo struct {
	release string
	machine string
}

func uname() unameInfo {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return unameInfo{}
	}
	return unameInfo{
		release: unix.ByteSliceToString(u.Release[:]),
		machine: unix.ByteSliceToString(u.Machine[:]),
	}
}
