// Package projectfile extracts package and project reference declarations from
// MSBuild project text. It works line by line, so it only understands the
// single-line self-closing reference forms.
package projectfile
