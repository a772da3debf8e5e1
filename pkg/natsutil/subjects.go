/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package natsutil

import "strings"

// SnapshotSubject is the subject a device's snapshots are published on.
func SnapshotSubject(prefix, deviceID string) string {
	return prefix + ".snapshots." + subjectToken(deviceID)
}

// AlertSubject is the subject a device's alerts are published on.
func AlertSubject(prefix, deviceID string) string {
	return prefix + ".alerts." + subjectToken(deviceID)
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		default:
			return r
		}
	}, s)
}

// ensureSubjectList appends subject unless a pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	if containsMatch(subjects, subject) {
		return subjects
	}

	return append(subjects, subject)
}

func containsMatch(patterns []string, subject string) bool {
	for _, p := range patterns {
		if matchesSubject(p, subject) {
			return true
		}
	}

	return false
}

// matchesSubject reports whether pattern covers subject using NATS
// wildcard rules.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if tok != "*" && tok != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}
