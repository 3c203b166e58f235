package parser

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.olrik.dev/devhub/internal/device"
)

var (
	processRecordRe = regexp.MustCompile(`ProcessRecord\{[0-9a-f]+ (\d+):([^/\s}]+)/(\S+?)\}`)
	appUserRe       = regexp.MustCompile(`^u(\d+)([ais])(\d+)$`)
	attributeRe     = regexp.MustCompile(`([A-Za-z][\w.]*)=(\{[^}]*\}|\[[^\]]*\]|\S+)`)
)

// Well known Android system users
var androidUsers = map[string]int{
	"root":      0,
	"system":    1000,
	"radio":     1001,
	"bluetooth": 1002,
	"nfc":       1027,
	"shell":     2000,
}

// AndroidUID converts a ProcessRecord user such as "u0a123" or "1000" to a
// numeric uid. Unknown names yield -1.
func AndroidUID(user string) int {
	if n, err := strconv.Atoi(user); err == nil {
		return n
	}
	if m := appUserRe.FindStringSubmatch(user); m != nil {
		userID, _ := strconv.Atoi(m[1])
		n, _ := strconv.Atoi(m[3])
		base := 10000 // app
		switch m[2] {
		case "i":
			base = 99000 // isolated
		case "s":
			base = 0 // shared system uid
		}
		return userID*100000 + base + n
	}
	if uid, ok := androidUsers[user]; ok {
		return uid
	}
	return -1
}

// ParseProcessRecords parses `dumpsys activity processes | grep ProcessRecord`.
// A process listed several times is returned once, in first-seen order.
func ParseProcessRecords(output string) []device.Process {
	var procs []device.Process
	seen := make(map[int]bool)
	for _, line := range lines(output) {
		p, ok := parseProcessRecord(line)
		if !ok || seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true
		procs = append(procs, p)
	}
	return procs
}

// ParseProcessDump parses the verbose `dumpsys activity processes` output.
// Each "*APP*" or "*PERS*" record header starts a process; the indented
// key=value lines that follow become its attributes.
func ParseProcessDump(output string) []device.Process {
	var procs []*device.AndroidProcess
	seen := make(map[int]bool)
	var current *device.AndroidProcess

	for _, line := range lines(output) {
		if strings.Contains(line, "ProcessRecord{") {
			current = nil
			if !strings.HasPrefix(line, "*") {
				continue
			}
			p, ok := parseProcessRecord(line)
			if !ok || seen[p.Pid] {
				continue
			}
			seen[p.Pid] = true
			p.Attrs = make(map[string]string)
			procs = append(procs, &p)
			current = procs[len(procs)-1]
			continue
		}
		if current == nil {
			continue
		}
		for _, m := range attributeRe.FindAllStringSubmatch(line, -1) {
			if _, dup := current.Attrs[m[1]]; !dup {
				current.Attrs[m[1]] = m[2]
			}
		}
	}

	out := make([]device.Process, 0, len(procs))
	for _, p := range procs {
		if uid, err := strconv.Atoi(p.Attrs["uid"]); err == nil {
			p.Uid = uid
		}
		for _, key := range []string{"requiredAbi", "primaryAbi"} {
			if abi := p.Attrs[key]; abi != "" && abi != "null" {
				p.Abi = abi
				break
			}
		}
		out = append(out, *p)
	}
	return out
}

func parseProcessRecord(line string) (device.AndroidProcess, bool) {
	m := processRecordRe.FindStringSubmatch(line)
	if m == nil {
		return device.AndroidProcess{}, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return device.AndroidProcess{}, false
	}
	name := m[2]
	pkg, _, _ := strings.Cut(name, ":")
	return device.AndroidProcess{
		UserName: m[3],
		Uid:      AndroidUID(m[3]),
		Pid:      pid,
		Name:     name,
		Package:  pkg,
	}, true
}

// ParseHarmonyPS parses toybox `ps -ef` or `ps -A -o ...` output. Columns
// are taken from the header line and the last column absorbs the rest of the
// row, so commands with arguments survive.
func ParseHarmonyPS(output string) []device.Process {
	all := lines(output)
	if len(all) == 0 {
		return nil
	}
	header := strings.Fields(strings.ToUpper(all[0]))
	if len(header) == 0 {
		return nil
	}

	var procs []device.Process
	for _, line := range all[1:] {
		fields := strings.Fields(line)
		if len(fields) < len(header) {
			continue
		}
		cols := make(map[string]string, len(header))
		for i, h := range header {
			if i == len(header)-1 {
				cols[h] = strings.Join(fields[i:], " ")
				break
			}
			cols[h] = fields[i]
		}

		p := device.HarmonyProcess{Uid: -1, Columns: cols}
		var err error
		if p.Pid, err = strconv.Atoi(cols["PID"]); err != nil {
			continue
		}
		p.PPid, _ = strconv.Atoi(cols["PPID"])

		p.UserName = cols["USER"]
		if uid, err := strconv.Atoi(cols["UID"]); err == nil {
			p.Uid = uid
		} else if p.UserName == "" {
			// ps -ef prints the user name in the UID column
			p.UserName = cols["UID"]
		}

		p.Name = harmonyProcessName(cols)
		if p.Name == "" {
			continue
		}
		procs = append(procs, p)
	}
	return procs
}

func harmonyProcessName(cols map[string]string) string {
	if name := cols["NAME"]; name != "" {
		return name
	}
	for _, key := range []string{"CMD", "COMMAND", "ARGS", "CMDLINE"} {
		if cmd := cols[key]; cmd != "" {
			first, _, _ := strings.Cut(cmd, " ")
			if strings.HasPrefix(first, "[") {
				// Kernel thread such as [kworker/0:1]
				return strings.Trim(first, "[]")
			}
			return path.Base(first)
		}
	}
	return ""
}
