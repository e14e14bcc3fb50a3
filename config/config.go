// Package config defines the typed configuration struct the core consumes
// (§6), loaded from YAML by an external caller — the core itself never
// touches a filesystem path or env var.
package config

import (
	"net"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PortRange is an inclusive [Low, High] ephemeral port range.
type PortRange struct {
	Low  uint16 `yaml:"low"`
	High uint16 `yaml:"high"`
}

// Config is the typed configuration struct passed to the core — every
// field here traces back to one of §6's bullets.
type Config struct {
	LocalIPv4   string `yaml:"local_ipv4"`
	LocalMAC    string `yaml:"local_mac"`
	GatewayIPv4 string `yaml:"gateway_ipv4,omitempty"`
	SubnetMask  string `yaml:"subnet_mask"`

	ARPTable              map[string]string `yaml:"arp_table,omitempty"`
	ARPRequestRetries     int               `yaml:"arp_request_retries"`
	ARPRequestIntervalMs  int               `yaml:"arp_request_interval_ms"`
	ARPCacheTTLSeconds    int               `yaml:"arp_cache_ttl_s"`

	TCPMSS                  uint16 `yaml:"tcp_mss"`
	TCPRTOMinMs              int    `yaml:"tcp_rto_min_ms"`
	TCPRTOMaxMs              int    `yaml:"tcp_rto_max_ms"`
	TCPSynRetries            int    `yaml:"tcp_syn_retries"`
	TCPWindowScale           uint8  `yaml:"tcp_window_scale"`
	TCPTimestamps            bool   `yaml:"tcp_timestamps"`
	TCPRxReassemblyMaxBytes  int    `yaml:"tcp_rx_reassembly_max_bytes"`

	UDPEphemeralRange PortRange `yaml:"udp_ephemeral_range"`

	BufferPoolBuffers int `yaml:"buffer_pool_buffers"`
	BufferRegionBytes int `yaml:"buffer_region_bytes"`
}

// Defaults returns a Config with every tunable set to spec.md's stated
// defaults, leaving the addressing fields empty for the caller to fill.
func Defaults() Config {
	return Config{
		ARPRequestRetries:       5,
		ARPRequestIntervalMs:    1000,
		ARPCacheTTLSeconds:      15 * 60,
		TCPMSS:                  1460,
		TCPRTOMinMs:             200,
		TCPRTOMaxMs:             60000,
		TCPSynRetries:           5,
		TCPWindowScale:          0,
		TCPTimestamps:           false,
		TCPRxReassemblyMaxBytes: 1 << 20,
		UDPEphemeralRange:       PortRange{Low: 49152, High: 65535},
		BufferPoolBuffers:       2048,
		BufferRegionBytes:       2048,
	}
}

// Load parses YAML bytes into a Config seeded with Defaults, then
// validates it.
func Load(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field parses into the types the core
// actually needs, returning the first problem found.
func (c Config) Validate() error {
	if _, err := c.LocalAddress(); err != nil {
		return errors.Wrap(err, "config: local_ipv4")
	}
	if _, err := c.LocalLinkAddress(); err != nil {
		return errors.Wrap(err, "config: local_mac")
	}
	if c.GatewayIPv4 != "" {
		if _, err := parseAddress(c.GatewayIPv4); err != nil {
			return errors.Wrap(err, "config: gateway_ipv4")
		}
	}
	for ip, mac := range c.ARPTable {
		if _, err := parseAddress(ip); err != nil {
			return errors.Wrapf(err, "config: arp_table key %q", ip)
		}
		if _, err := parseLinkAddress(mac); err != nil {
			return errors.Wrapf(err, "config: arp_table value %q", mac)
		}
	}
	if c.UDPEphemeralRange.Low == 0 || c.UDPEphemeralRange.Low > c.UDPEphemeralRange.High {
		return errors.New("config: udp_ephemeral_range must satisfy 0 < low <= high")
	}
	if c.TCPWindowScale > 14 {
		return errors.New("config: tcp_window_scale must be <= 14 (RFC 1323)")
	}
	if c.BufferPoolBuffers <= 0 || c.BufferRegionBytes <= 0 {
		return errors.New("config: buffer_pool_buffers and buffer_region_bytes must be positive")
	}
	return nil
}

// LocalAddress parses LocalIPv4 into the core's Address type.
func (c Config) LocalAddress() (catnip.Address, error) { return parseAddress(c.LocalIPv4) }

// GatewayAddress parses GatewayIPv4, returning the zero Address if unset.
func (c Config) GatewayAddress() (catnip.Address, error) {
	if c.GatewayIPv4 == "" {
		return "", nil
	}
	return parseAddress(c.GatewayIPv4)
}

// SubnetMaskAddress parses SubnetMask into the core's Address type.
func (c Config) SubnetMaskAddress() (catnip.Address, error) { return parseAddress(c.SubnetMask) }

// LocalLinkAddress parses LocalMAC into the core's LinkAddress type.
func (c Config) LocalLinkAddress() (catnip.LinkAddress, error) { return parseLinkAddress(c.LocalMAC) }

// StaticARPEntries parses ARPTable into the core's address types, for
// handing to arp.Config.StaticEntries.
func (c Config) StaticARPEntries() (map[catnip.Address]catnip.LinkAddress, error) {
	out := make(map[catnip.Address]catnip.LinkAddress, len(c.ARPTable))
	for ip, mac := range c.ARPTable {
		addr, err := parseAddress(ip)
		if err != nil {
			return nil, err
		}
		link, err := parseLinkAddress(mac)
		if err != nil {
			return nil, err
		}
		out[addr] = link
	}
	return out, nil
}

// ARPRequestInterval returns ARPRequestIntervalMs as a time.Duration.
func (c Config) ARPRequestInterval() time.Duration {
	return time.Duration(c.ARPRequestIntervalMs) * time.Millisecond
}

// ARPCacheTTL returns ARPCacheTTLSeconds as a time.Duration.
func (c Config) ARPCacheTTL() time.Duration {
	return time.Duration(c.ARPCacheTTLSeconds) * time.Second
}

// TCPRTOMin returns TCPRTOMinMs as a time.Duration.
func (c Config) TCPRTOMin() time.Duration { return time.Duration(c.TCPRTOMinMs) * time.Millisecond }

// TCPRTOMax returns TCPRTOMaxMs as a time.Duration.
func (c Config) TCPRTOMax() time.Duration { return time.Duration(c.TCPRTOMaxMs) * time.Millisecond }

func parseAddress(s string) (catnip.Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return "", errors.Errorf("invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", errors.Errorf("not an IPv4 address %q", s)
	}
	return catnip.Address(v4), nil
}

func parseLinkAddress(s string) (catnip.LinkAddress, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid MAC address %q", s)
	}
	if len(mac) != 6 {
		return "", errors.Errorf("MAC address %q is not 6 bytes", s)
	}
	return catnip.LinkAddress(mac), nil
}
