package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/richinsley/sysvipc"
)

var errUsage = errors.New("usage")

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// parseOp parses NUM:DELTA[:FLAGS], where FLAGS holds the letters n (no wait)
// and u (undo), e.g. "0:-1:u".
func parseOp(s string) (sysvipc.Op, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return sysvipc.Op{}, usagef("operation %q: want NUM:DELTA[:FLAGS]", s)
	}
	num, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return sysvipc.Op{}, usagef("operation %q: bad semaphore number", s)
	}
	delta, err := strconv.ParseInt(parts[1], 10, 16)
	if err != nil {
		return sysvipc.Op{}, usagef("operation %q: bad delta", s)
	}
	op := sysvipc.Op{Num: uint16(num), Delta: int16(delta)}
	if len(parts) == 3 {
		for _, c := range parts[2] {
			switch c {
			case 'n':
				op.Flags |= sysvipc.NoWait
			case 'u':
				op.Flags |= sysvipc.Undo
			default:
				return sysvipc.Op{}, usagef("operation %q: unknown flag %q", s, c)
			}
		}
	}
	return op, nil
}

func parseOps(args []string) ([]sysvipc.Op, error) {
	ops := make([]sysvipc.Op, 0, len(args))
	for _, arg := range args {
		op, err := parseOp(arg)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// parseKey accepts a number in any Go base, "private", or PATH:ID.
func parseKey(r sysvipc.PathResolver, s string) (sysvipc.Key, error) {
	if s == "private" {
		return sysvipc.IPCPrivate, nil
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return sysvipc.Key(v), nil
	}
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return 0, usagef("key %q: want a number, \"private\" or PATH:ID", s)
	}
	id, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, usagef("key %q: bad project id", s)
	}
	return sysvipc.DeriveKey(r, s[:i], id)
}

// resolveKey turns a -key flag into a key, falling back to the configured key
// path and then to IPCPrivate.
func (a *app) resolveKey(flagValue string) (sysvipc.Key, error) {
	if flagValue != "" {
		return parseKey(a.backend, flagValue)
	}
	if a.cfg.IPC.KeyPath != "" {
		return sysvipc.DeriveKey(a.backend, a.cfg.IPC.KeyPath, a.cfg.IPC.ProjectID)
	}
	return sysvipc.IPCPrivate, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, usagef("bad identifier %q", s)
	}
	return id, nil
}

func parseValues(s string) ([]uint16, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	vals := make([]uint16, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return nil, usagef("bad value %q", f)
		}
		vals[i] = uint16(v)
	}
	return vals, nil
}
