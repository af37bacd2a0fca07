package segment

import "strings"

// JunkPattern flags section content the generator produced instead of report
// prose, such as a code-tutorial skeleton copied from its training data. A
// match drops the whole section; partial salvage is not attempted.
type JunkPattern struct {
	Reason string
	Match  func(content string) bool
}

// malformedSourceTableRunOn is a recurring artifact where the generator fuses
// the source table header with a component call instead of emitting rows.
const malformedSourceTableRunOn = "| Source | Usefulness Assessment | Notes | Rating (1-5) |({"

// junkPatterns is evaluated in order, stopping at the first match per
// section. Each check is a prefix heuristic: a section that merely opens with
// one of these signatures is dropped even if report prose follows. That
// trades recall for simplicity; legitimate sections quoting such code are
// lost with it.
var junkPatterns = []JunkPattern{
	{
		Reason: "cpp console skeleton",
		Match: func(c string) bool {
			return strings.HasPrefix(c, "#include <iostream>") ||
				strings.HasPrefix(c, "using namespace std;")
		},
	},
	{
		Reason: "python web boilerplate",
		Match: func(c string) bool {
			return strings.HasPrefix(c, "from flask import") ||
				strings.HasPrefix(c, "from fastapi import") ||
				strings.HasPrefix(c, "app = Flask(") ||
				strings.HasPrefix(c, "if __name__ ==")
		},
	},
	{
		Reason: "html document skeleton",
		Match: func(c string) bool {
			return strings.HasPrefix(c, "<!DOCTYPE html>") ||
				strings.HasPrefix(c, "<html")
		},
	},
	{
		Reason: "node express boilerplate",
		Match: func(c string) bool {
			return strings.HasPrefix(c, "const express = require(") ||
				strings.HasPrefix(c, "var express = require(") ||
				strings.HasPrefix(c, "const app = express()")
		},
	},
	{
		Reason: "malformed source table",
		Match: func(c string) bool {
			return strings.HasPrefix(c, malformedSourceTableRunOn)
		},
	},
	{
		Reason: "frontend component boilerplate",
		Match: func(c string) bool {
			return strings.HasPrefix(c, "import React") ||
				strings.HasPrefix(c, "export default function") ||
				strings.HasPrefix(c, "function App()")
		},
	},
}

// matchJunk tests content against the junk table in order.
func matchJunk(content string) (string, bool) {
	for _, p := range junkPatterns {
		if p.Match(content) {
			return p.Reason, true
		}
	}
	return "", false
}
