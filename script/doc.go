// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package script builds a structural model of bash scripts.
//
// The model is not a full syntax tree. It records the blocks that give a
// script its shape (if, loops, braces, case, subshells and function
// bodies), the function definitions and the variables with their
// assignments, and reports unbalanced constructs with byte offsets into
// the source. Building never fails on malformed shell code, since
// finding malformed structure is the point.
package script
