//go:build !linux

package source

func IsWSL() bool { return false }
