package device

// Process is a process record from either platform
type Process interface {
	User() string
	UID() int
	PID() int
	ProcessName() string
	PackageName() string
	ABI() string
	Attributes() map[string]string
}

// AndroidProcess is parsed from dumpsys activity output
type AndroidProcess struct {
	UserName string
	Uid      int
	Pid      int
	Name     string
	Package  string
	Abi      string
	Attrs    map[string]string // Only set by verbose dumps
}

func (p AndroidProcess) User() string                  { return p.UserName }
func (p AndroidProcess) UID() int                      { return p.Uid }
func (p AndroidProcess) PID() int                      { return p.Pid }
func (p AndroidProcess) ProcessName() string           { return p.Name }
func (p AndroidProcess) PackageName() string           { return p.Package }
func (p AndroidProcess) ABI() string                   { return p.Abi }
func (p AndroidProcess) Attributes() map[string]string { return p.Attrs }

// HarmonyProcess is parsed from ps output
type HarmonyProcess struct {
	UserName string
	Uid      int
	Pid      int
	PPid     int
	Name     string
	Columns  map[string]string // Raw columns keyed by header
}

func (p HarmonyProcess) User() string        { return p.UserName }
func (p HarmonyProcess) UID() int            { return p.Uid }
func (p HarmonyProcess) PID() int            { return p.Pid }
func (p HarmonyProcess) ProcessName() string { return p.Name }
func (p HarmonyProcess) ABI() string         { return "" }

// PackageName is the process name up to the first ':' (sub-process marker)
func (p HarmonyProcess) PackageName() string {
	for i := 0; i < len(p.Name); i++ {
		if p.Name[i] == ':' {
			return p.Name[:i]
		}
	}
	return p.Name
}

func (p HarmonyProcess) Attributes() map[string]string { return p.Columns }
