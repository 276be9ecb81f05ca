package api

// Host is the agent's record for one connected client machine.
type Host struct {
	Addr           string     `json:"addr"`
	Version        string     `json:"version"`
	TargetPlatform string     `json:"target_platform"`
	ConnectedTime  string     `json:"connected_time"`
	SystemInfo     SystemInfo `json:"system_info"`
}

// SystemInfo is the subset of host facts the console shows.
type SystemInfo struct {
	HostName      string `json:"host_name,omitempty"`
	LongOSVersion string `json:"long_os_version,omitempty"`
	CPUArch       string `json:"cpu_arch"`
}

// Name is the host name when known, else the address.
func (h Host) Name() string {
	if h.SystemInfo.HostName != "" {
		return h.SystemInfo.HostName
	}
	return h.Addr
}

// Display is one capturable screen surface on a host.
type Display struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsOnline  bool   `json:"is_online"`
	IsPrimary bool   `json:"is_primary"`
}

// ServerInfo describes the agent build.
type ServerInfo struct {
	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// PrimaryDisplay is the index of the primary display, else of the first
// online one, else 0.
func PrimaryDisplay(displays []Display) int {
	online := -1
	for i, d := range displays {
		if d.IsPrimary {
			return i
		}
		if d.IsOnline && online < 0 {
			online = i
		}
	}
	return max(online, 0)
}
