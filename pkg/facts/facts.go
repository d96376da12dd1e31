package facts

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	FamilyRedHat = "RedHat"
	FamilyDebian = "Debian"
	FamilySuse   = "Suse"
)

// Facts are the host properties the derivation and feature gates depend on
type Facts struct {
	OSFamily       string `json:"os_family" yaml:"os_family"`
	OSMajorRelease int    `json:"os_major_release" yaml:"os_major_release"`
	PrimaryIP      string `json:"primary_ip" yaml:"primary_ip"`
	Hostname       string `json:"hostname" yaml:"hostname"`
}

// Overrides replaces gathered facts; zero fields are ignored
type Overrides struct {
	OSFamily       string `yaml:"os_family" toml:"os_family"`
	OSMajorRelease int    `yaml:"os_major_release" toml:"os_major_release"`
	PrimaryIP      string `yaml:"primary_ip" toml:"primary_ip"`
	Hostname       string `yaml:"hostname" toml:"hostname"`
}

// Apply returns f with every non-zero override applied
func (f Facts) Apply(o Overrides) Facts {
	if o.OSFamily != "" {
		f.OSFamily = o.OSFamily
	}
	if o.OSMajorRelease != 0 {
		f.OSMajorRelease = o.OSMajorRelease
	}
	if o.PrimaryIP != "" {
		f.PrimaryIP = o.PrimaryIP
	}
	if o.Hostname != "" {
		f.Hostname = o.Hostname
	}
	return f
}

// IsRedHat reports whether the host belongs to the RedHat family
func (f Facts) IsRedHat() bool {
	return f.OSFamily == FamilyRedHat
}

// Gatherer reads facts from the running host
type Gatherer struct {
	// Root prefixes /etc/os-release, for chroots and tests
	Root string

	InterfaceAddrs func() ([]net.Addr, error)
	Hostname       func() (string, error)
}

// NewGatherer creates a gatherer for the host rooted at root
func NewGatherer(root string) *Gatherer {
	return &Gatherer{
		Root:           root,
		InterfaceAddrs: net.InterfaceAddrs,
		Hostname:       os.Hostname,
	}
}

// Gather collects OS family, major release, primary IP and hostname
func (g *Gatherer) Gather() (Facts, error) {
	var f Facts

	data, err := os.ReadFile(filepath.Join(g.Root, "/etc/os-release"))
	if err != nil {
		return f, fmt.Errorf("failed to read os-release: %w", err)
	}
	f.OSFamily, f.OSMajorRelease = ParseOSRelease(data)

	addrs, err := g.InterfaceAddrs()
	if err != nil {
		return f, fmt.Errorf("failed to list interface addresses: %w", err)
	}
	f.PrimaryIP = PrimaryIPv4(addrs)

	if name, err := g.Hostname(); err == nil {
		f.Hostname = name
	}

	return f, nil
}

// ParseOSRelease maps os-release(5) content to an OS family and major release
func ParseOSRelease(data []byte) (string, int) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}

	family := familyOf(fields["ID"] + " " + fields["ID_LIKE"])

	major := 0
	if v := fields["VERSION_ID"]; v != "" {
		head, _, _ := strings.Cut(v, ".")
		if n, err := strconv.Atoi(head); err == nil {
			major = n
		}
	}
	return family, major
}

func familyOf(ids string) string {
	for _, id := range strings.Fields(strings.ToLower(ids)) {
		switch id {
		case "rhel", "centos", "fedora", "rocky", "almalinux", "ol", "amzn":
			return FamilyRedHat
		case "debian", "ubuntu":
			return FamilyDebian
		case "suse", "sles", "opensuse":
			return FamilySuse
		}
	}
	return "Unknown"
}

// PrimaryIPv4 returns the first non-loopback IPv4 address, or ""
func PrimaryIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
