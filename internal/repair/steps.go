package repair

import "fmt"

// AndroidSteps switches adbd to TCP mode on port
func AndroidSteps(port int) []Step {
	return []Step{
		{Command: fmt.Sprintf("setprop service.adb.tcp.port %d", port)},
		{Command: "stop adbd"},
		{Command: "start adbd"},
	}
}

// HarmonySteps enables hdc over TCP on port. The device reboots to apply it.
func HarmonySteps(port int) []Step {
	return []Step{
		{Command: "param set persist.hdc.mode all"},
		{Command: fmt.Sprintf("param set persist.hdc.port %d", port)},
		{Command: "reboot", MayDisconnect: true},
	}
}
