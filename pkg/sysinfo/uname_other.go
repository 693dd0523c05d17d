//go:build !linux

package sysinfo

type unameInfo struct {
	release string
	machine string
}

func uname() unameInfo { return unameInfo{} }
