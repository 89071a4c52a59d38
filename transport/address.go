package transport

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSystemBusAddress is used when DBUS_SYSTEM_BUS_ADDRESS is unset
// (spec §6.2).
const DefaultSystemBusAddress = "unix:path=/var/run/dbus/system_bus_socket"

// Address is one parsed element of a D-Bus server address string, e.g.
// "unix:path=/run/dbus/system_bus_socket" or
// "tcp:host=localhost,port=5000,family=ipv4".
type Address struct {
	Transport string // "unix" or "tcp"
	Params    map[string]string
}

// ParseAddresses parses a ';'-separated D-Bus address string into its
// component Addresses, in order. Unrecognized keys (e.g. "guid=") are
// kept in Params but ignored by the dialers.
func ParseAddresses(s string) ([]Address, error) {
	var addrs []Address
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		transport, rest, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("transport: malformed address %q: missing ':'", part)
		}
		params := map[string]string{}
		for _, kv := range strings.Split(rest, ",") {
			if kv == "" {
				continue
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("transport: malformed address %q: bad key/value %q", part, kv)
			}
			unescaped, err := unescapeAddressValue(v)
			if err != nil {
				return nil, fmt.Errorf("transport: malformed address %q: %w", part, err)
			}
			params[k] = unescaped
		}
		addrs = append(addrs, Address{Transport: transport, Params: params})
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("transport: empty address string")
	}
	return addrs, nil
}

// unescapeAddressValue reverses the D-Bus address percent-encoding
// (%XX, two hex digits), used for characters like '=' and ';' that
// would otherwise collide with the grammar's own delimiters.
func unescapeAddressValue(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent-escape in %q", s)
		}
		v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid percent-escape in %q: %w", s, err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

// SystemBusAddress returns the address string for the system bus,
// consulting DBUS_SYSTEM_BUS_ADDRESS and falling back to
// [DefaultSystemBusAddress] (spec §6.2).
func SystemBusAddress() string {
	if v := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); v != "" {
		return v
	}
	return DefaultSystemBusAddress
}

// SessionBusAddress returns the address string for the session bus from
// DBUS_SESSION_BUS_ADDRESS. There is no default for the session bus
// (spec §6.2); an empty result means no session bus is configured.
func SessionBusAddress() string {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS")
}

// Dial connects to the first address in addrs that succeeds, matching
// the reference behavior of trying each semicolon-separated alternative
// in turn.
func Dial(ctx context.Context, addrs []Address) (Transport, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("transport: no addresses to dial")
	}
	var errs []error
	for _, a := range addrs {
		t, err := dialOne(ctx, a)
		if err == nil {
			return t, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.Transport, err))
	}
	return nil, fmt.Errorf("transport: all addresses failed: %v", errs)
}

func dialOne(ctx context.Context, a Address) (Transport, error) {
	switch a.Transport {
	case "unix":
		return DialUnix(ctx, a)
	case "tcp":
		return DialTCP(ctx, a)
	default:
		return nil, fmt.Errorf("transport: unsupported transport kind %q", a.Transport)
	}
}
