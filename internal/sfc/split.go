// Package sfc splits single-file-component source into its template, script
// and style sections.
package sfc

import (
	"regexp"
	"strings"
)

// Sections holds the bodies of the three SFC blocks. A missing block is "".
type Sections struct {
	Template string `json:"template"`
	Script   string `json:"script"`
	Style    string `json:"style"`
}

var (
	templatePattern = regexp.MustCompile(`<template>([\s\S]*?)</template>`)
	scriptPattern   = regexp.MustCompile(`<script>([\s\S]*?)</script>`)
	stylePattern    = regexp.MustCompile(`<style>([\s\S]*?)</style>`)
)

// Split extracts the first template, script and style block from source.
// Delimiters are exact and case-sensitive; blocks may appear in any order.
func Split(source string) Sections {
	return Sections{
		Template: Template(source),
		Script:   Script(source),
		Style:    Style(source),
	}
}

// Template returns the trimmed body of the first <template> block.
func Template(source string) string {
	return firstMatch(source, templatePattern)
}

// Script returns the trimmed body of the first <script> block.
func Script(source string) string {
	return firstMatch(source, scriptPattern)
}

// Style returns the trimmed body of the first <style> block.
func Style(source string) string {
	return firstMatch(source, stylePattern)
}

func firstMatch(source string, pattern *regexp.Regexp) string {
	m := pattern.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
