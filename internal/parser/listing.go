package parser

import (
	"regexp"
	"strconv"
	"strings"

	"go.olrik.dev/devhub/internal/device"
)

var (
	tokenRe    = regexp.MustCompile(`\S+`)
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockRe    = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	longClock  = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}(\.\d+)?$`)
	zoneRe     = regexp.MustCompile(`^[+-]\d{4}$`)
	dayRe      = regexp.MustCompile(`^\d{1,2}$`)
	yearRe     = regexp.MustCompile(`^\d{4}$`)
	humanSize  = regexp.MustCompile(`^\d+(\.\d+)?[KMGTPE]$`)
	plainBytes = regexp.MustCompile(`^\d+$`)
)

var (
	months   = map[string]bool{"Jan": true, "Feb": true, "Mar": true, "Apr": true, "May": true, "Jun": true, "Jul": true, "Aug": true, "Sep": true, "Oct": true, "Nov": true, "Dec": true}
	weekdays = map[string]bool{"Mon": true, "Tue": true, "Wed": true, "Thu": true, "Fri": true, "Sat": true, "Sun": true}
)

// PermissionDenied is the message of the error entry returned for
// unreadable directories
const PermissionDenied = "Permission denied"

// ParseListing parses `ls -h -g -L <parent>` output. Both the owner-less
// (-g) and the owner+group column layouts are accepted, as are the short
// ("2024-01-01 10:00") and long ("2024-01-01 10:00:00.000 +0800",
// "Mon Jan  1 10:00:00 2024") timestamp formats.
//
// Symlinks are left out. When the listing itself failed the result is a
// single Error entry, and when the backend is not ready a single Tip entry.
func ParseListing(parent, output string) []device.FileEntry {
	var entries []device.FileEntry
	var failure string

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "total ") {
			continue
		}
		if strings.HasPrefix(trimmed, "[Fail]") {
			return []device.FileEntry{device.TipEntry(parent, trimmed)}
		}

		entry, ok := parseListingLine(parent, line)
		if !ok {
			if failure == "" && isListingFailure(trimmed) {
				failure = trimmed
			}
			continue
		}
		if entry.Type == device.Symlink || entry.Name == "." || entry.Name == ".." {
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 && failure != "" {
		msg := failure
		if strings.Contains(failure, PermissionDenied) {
			msg = PermissionDenied
		}
		return []device.FileEntry{device.ErrorEntry(parent, msg)}
	}
	return entries
}

func isListingFailure(line string) bool {
	return strings.Contains(line, PermissionDenied) ||
		strings.Contains(line, "No such file or directory") ||
		strings.Contains(line, "Not a directory")
}

func parseListingLine(parent, line string) (device.FileEntry, bool) {
	locs := tokenRe.FindAllStringIndex(line, -1)
	if len(locs) < 5 {
		return device.FileEntry{}, false
	}
	tok := func(i int) string { return line[locs[i][0]:locs[i][1]] }

	perms := tok(0)
	if len(perms) < 10 || !strings.ContainsRune("-dlcbps", rune(perms[0])) {
		return device.FileEntry{}, false
	}
	if _, err := strconv.Atoi(tok(1)); err != nil {
		return device.FileEntry{}, false
	}

	// Between the link count and the date sit zero to two name columns and
	// the size, so the date starts at token 3, 4 or 5. Device nodes print
	// "major, minor" as the size, which pushes the date one token further.
	for start := 3; start <= 6 && start < len(locs); start++ {
		devicePair := start >= 4 && strings.HasSuffix(tok(start-2), ",")
		if start == 6 && !devicePair {
			continue
		}
		width := dateWidth(locs, tok, start)
		if width == 0 || start+width >= len(locs) {
			continue
		}

		entry := device.NewFileEntry(parent, line[locs[start+width][0]:], fileType(perms[0]))
		entry.Permissions = perms
		if devicePair {
			entry.Size = tok(start-2) + " " + tok(start-1)
		} else {
			entry.Size = normalizeSize(tok(start - 1))
		}
		entry.ModTime = line[locs[start][0]:locs[start+width-1][1]]
		entry.ModTime = strings.Join(strings.Fields(entry.ModTime), " ")
		return entry, true
	}
	return device.FileEntry{}, false
}

// dateWidth returns the number of tokens the timestamp starting at token i
// occupies, or 0 if no timestamp starts there.
func dateWidth(locs [][]int, tok func(int) string, i int) int {
	has := func(n int) bool { return i+n < len(locs) }

	switch t := tok(i); {
	case isoDateRe.MatchString(t) && has(1):
		next := tok(i + 1)
		if clockRe.MatchString(next) {
			return 2
		}
		if longClock.MatchString(next) {
			if has(2) && zoneRe.MatchString(tok(i+2)) {
				return 3
			}
			return 2
		}
	case months[t] && has(2):
		if dayRe.MatchString(tok(i+1)) && (clockRe.MatchString(tok(i+2)) || yearRe.MatchString(tok(i+2))) {
			return 3
		}
	case weekdays[t] && has(4):
		if months[tok(i+1)] && dayRe.MatchString(tok(i+2)) && longClock.MatchString(tok(i+3)) && yearRe.MatchString(tok(i+4)) {
			return 5
		}
	}
	return 0
}

func fileType(c byte) device.FileType {
	switch c {
	case '-':
		return device.File
	case 'd':
		return device.Directory
	case 'l':
		return device.Symlink
	default:
		return device.Other
	}
}

// normalizeSize turns ls -h sizes into byte units: "12.3K" is "12.3KB" and
// "512" is "512B".
func normalizeSize(s string) string {
	switch {
	case humanSize.MatchString(s):
		return s + "B"
	case plainBytes.MatchString(s):
		return s + "B"
	default:
		return s
	}
}
