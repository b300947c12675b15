// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package fileutil decides which files hold Bash scripts, by name or by
// their shebang line.
package fileutil

import (
	"io/fs"
	"regexp"
	"strings"
)

var (
	shebangRe = regexp.MustCompile(`^#![ \t]*/(?:usr/)?bin/(?:env[ \t]+)?([^ \t\n/]+)(?:[ \t\n]|$)`)
	extRe     = regexp.MustCompile(`\.(sh|bash)$`)
)

// HeaderSize is how many leading bytes of a file are enough to find a
// shebang that HasShebang accepts.
const HeaderSize = 32

// Shebang returns the interpreter named by the shebang line at the start
// of bs, such as "bash" for "#!/usr/bin/env bash". It returns an empty
// string if there is no recognised shebang.
func Shebang(bs []byte) string {
	m := shebangRe.FindSubmatch(bs)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// HasShebang reports whether bs starts with a shebang for sh or bash.
func HasShebang(bs []byte) bool {
	switch Shebang(bs) {
	case "sh", "bash":
		return true
	}
	return false
}

// Confidence is how likely a file is to be a script, judging by its
// metadata alone.
type Confidence int

const (
	NotScript Confidence = iota
	IfShebang            // only a script if HasShebang says so
	IsScript
)

func (c Confidence) String() string {
	switch c {
	case NotScript:
		return "not a script"
	case IfShebang:
		return "script if shebang"
	case IsScript:
		return "script"
	}
	return "unknown"
}

// Classify reports whether the file described by info could be a script.
// Hidden files, directories and anything other than regular files never
// are.
func Classify(info fs.FileInfo) Confidence {
	name := info.Name()
	switch {
	case info.IsDir(), name[0] == '.', !info.Mode().IsRegular():
		return NotScript
	case extRe.MatchString(name):
		return IsScript
	case strings.Contains(name, "."):
		return NotScript // different extension
	case info.Size() < int64(len("#!/bin/sh\n")):
		return NotScript // cannot possibly hold valid shebang
	default:
		return IfShebang
	}
}
