// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package speech wraps the speech-to-text and text-to-speech sidecars and
// prepares assistant answers for spoken delivery.
package speech

import "strings"

// replacement is one symbol-to-words expansion. Order matters: longer
// symbols must run before their substrings (" km/h" before " km").
type replacement struct {
	from string
	to   string
}

// speakReplacements expands symbols and unit abbreviations the synthesizer
// would otherwise spell out or skip. Unit abbreviations match with their
// leading space so the expansion replaces it instead of adding a second
// one; "%" and the degree symbols sit flush against the number ("80%",
// "21°C") and bring their own space.
var speakReplacements = []replacement{
	{" %", " percent"},
	{"%", " percent"},
	{" °C", " degrees Celsius"},
	{"°C", " degrees Celsius"},
	{" °F", " degrees Fahrenheit"},
	{"°F", " degrees Fahrenheit"},
	{" km/h", " kilometers per hour"},
	{" m/s", " meters per second"},
	{" mm", " millimeters"},
	{" cm", " centimeters"},
	{" km", " kilometers"},
}

// NormalizeForSpeech rewrites text so unit symbols come out as words when
// spoken. Idempotent on already-normalized text.
func NormalizeForSpeech(text string) string {
	for _, r := range speakReplacements {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return text
}
