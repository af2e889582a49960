/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dhcp6

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DUID-type constants per RFC 3315 §9.1-9.3 and RFC 6355 §4.
const (
	duidTypeLLT  uint16 = 1
	duidTypeEN   uint16 = 2
	duidTypeLL   uint16 = 3
	duidTypeUUID uint16 = 4
)

// DUID is a wire-format DHCP Unique Identifier: a 2-byte type followed by
// a type-specific body, exactly as persisted to the DUID file (spec §6).
type DUID struct {
	raw []byte
}

// DUIDFromBytes wraps an already-encoded DUID (type + body).
func DUIDFromBytes(b []byte) DUID { return DUID{raw: append([]byte(nil), b...)} }

// Bytes returns the wire-format DUID.
func (d DUID) Bytes() []byte { return d.raw }

// IsZero reports whether d carries no identifier at all.
func (d DUID) IsZero() bool { return len(d.raw) == 0 }

func (d DUID) Equal(o DUID) bool {
	if len(d.raw) != len(o.raw) {
		return false
	}
	for i := range d.raw {
		if d.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

func newDUIDLLT(hwType ARPType, now uint32, hwaddr []byte) DUID {
	raw := make([]byte, 8+len(hwaddr))
	binary.BigEndian.PutUint16(raw[0:2], duidTypeLLT)
	binary.BigEndian.PutUint16(raw[2:4], uint16(hwType))
	binary.BigEndian.PutUint32(raw[4:8], now)
	copy(raw[8:], hwaddr)
	return DUID{raw: raw}
}

func newDUIDUUID(u uuid.UUID) DUID {
	raw := make([]byte, 2+16)
	binary.BigEndian.PutUint16(raw[0:2], duidTypeUUID)
	copy(raw[2:], u[:])
	return DUID{raw: raw}
}

// IdentitySource supplies the pieces Identity needs to resolve a DUID and
// derive an IAID for one device: the device's own interface (from
// NetInfo) and, when generation falls back to scanning, every other known
// interface.
type IdentitySource struct {
	NetInfo NetInfo

	// DefaultDUID is a process-wide configured default (precedence #2).
	// Empty unless the host configured one.
	DefaultDUID []byte

	// FilePath is where a generated or loaded DUID is persisted
	// (precedence #3/#4). Empty disables persistence (tests only).
	FilePath string

	// Now supplies the seconds-since-2000-01-01 value DUID-LLT embeds;
	// defaults to a real clock reading when nil.
	Now func() uint32

	// NewUUID generates the RFC 6355 fallback identifier; defaults to
	// uuid.New when nil so tests can make it deterministic.
	NewUUID func() uuid.UUID

	mu     sync.Mutex
	cached DUID
}

// Resolve implements the DUID precedence chain from spec §4.2: preferred
// (from the Request) > process default > persisted file > freshly
// generated (then persisted).
func (s *IdentitySource) Resolve(iface Iface, preferred []byte) (DUID, error) {
	if len(preferred) > 0 {
		return DUIDFromBytes(preferred), nil
	}
	if len(s.DefaultDUID) > 0 {
		return DUIDFromBytes(s.DefaultDUID), nil
	}
	if s.FilePath != "" {
		s.mu.Lock()
		cached := s.cached
		s.mu.Unlock()
		if !cached.IsZero() {
			return cached, nil
		}
		if b, err := os.ReadFile(s.FilePath); err == nil && len(b) > 0 {
			d := DUIDFromBytes(b)
			s.mu.Lock()
			s.cached = d
			s.mu.Unlock()
			return d, nil
		}
	}
	d, err := s.generate(iface)
	if err != nil {
		return DUID{}, err
	}
	if s.FilePath != "" {
		_ = os.WriteFile(s.FilePath, d.Bytes(), 0o600)
		s.mu.Lock()
		s.cached = d
		s.mu.Unlock()
	}
	return d, nil
}

// Watch starts an fsnotify watch on FilePath's containing directory so a
// DUID file rewritten out-of-band (the host replacing it, typically via
// a rename-into-place) is picked up without restarting the process: the
// next Resolve call for any interface returns the reloaded DUID. Returns
// (nil, nil) when FilePath is unset, since there is nothing to watch.
func (s *IdentitySource) Watch() (*FileWatcher, error) {
	if s.FilePath == "" {
		return nil, nil
	}
	return watchFile(s.FilePath, func(b []byte) {
		s.mu.Lock()
		s.cached = DUIDFromBytes(b)
		s.mu.Unlock()
	})
}

// FileWatcher wraps an fsnotify.Watcher scoped to one file, used to
// reload the persisted DUID file on external changes.
type FileWatcher struct {
	watcher *fsnotify.Watcher
}

// watchFile watches path's directory (not path itself: editors and
// config-management tools typically replace a file by rename, which
// fsnotify only sees as an event on the directory) and calls onChange
// with the file's new contents after every write or create event naming
// path.
func watchFile(path string, onChange func([]byte)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	fw := &FileWatcher{watcher: w}
	go fw.loop(path, onChange)
	return fw, nil
}

func (fw *FileWatcher) loop(path string, onChange func([]byte)) {
	target := filepath.Clean(path)
	for {
		select {
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			b, err := os.ReadFile(path)
			if err != nil || len(b) == 0 {
				continue
			}
			onChange(b)
		case _, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watch.
func (fw *FileWatcher) Close() error {
	if fw == nil {
		return nil
	}
	return fw.watcher.Close()
}

// generate tries DUID-LLT from the current interface, then scans other
// known interfaces (preferring Ethernet, then IEEE802, then Infiniband),
// then falls back to DUID-UUID (spec §4.2).
func (s *IdentitySource) generate(iface Iface) (DUID, error) {
	// DUID-LLT time: seconds since 2000-01-01 00:00:00 UTC.
	now := uint32(time.Now().Unix() - 946684800)
	if s.Now != nil {
		now = s.Now()
	}

	if len(iface.HWAddr) > 0 {
		return newDUIDLLT(iface.ARPType, now, iface.HWAddr), nil
	}

	if s.NetInfo != nil {
		if candidates, err := s.NetInfo.All(); err == nil {
			for _, order := range []ARPType{ARPTypeEther, ARPTypeIEEE802, ARPTypeInfiniband} {
				for _, cand := range candidates {
					if cand.Index == iface.Index {
						continue
					}
					if cand.ARPType == order && len(cand.HWAddr) > 0 {
						return newDUIDLLT(cand.ARPType, now, cand.HWAddr), nil
					}
				}
			}
		}
	}

	newUUID := uuid.New
	if s.NewUUID != nil {
		newUUID = s.NewUUID
	}
	return newDUIDUUID(newUUID()), nil
}

// DeriveIAID implements spec §4.2's IAID rule: the last 4 bytes of a
// hardware address of at least 4 bytes (big-endian as read); otherwise the
// XOR of up to the first 4 bytes of ifname, the VLAN tag (if set and
// positive), and the ifindex. Returns ErrNoIAID if neither source yields
// data.
func DeriveIAID(iface Iface) (uint32, error) {
	if len(iface.HWAddr) >= 4 {
		n := len(iface.HWAddr)
		return binary.BigEndian.Uint32(iface.HWAddr[n-4:]), nil
	}

	if iface.Name == "" && iface.Index == 0 && iface.VLAN <= 0 {
		return 0, ErrNoIAID
	}

	var nameBytes [4]byte
	n := copy(nameBytes[:], iface.Name)
	_ = n
	iaid := binary.BigEndian.Uint32(nameBytes[:])
	if iface.VLAN > 0 {
		iaid ^= uint32(iface.VLAN)
	}
	iaid ^= uint32(iface.Index)
	return iaid, nil
}
