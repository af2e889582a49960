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

package static

import (
	"errors"
	"testing"

	"github.com/dhcp6client/engine/dhcp6"
)

func TestNetInfoByIndexUnknownReturnsErrNoInterface(t *testing.T) {
	n := New()
	if _, err := n.ByIndex(1); !errors.Is(err, dhcp6.ErrNoInterface) {
		t.Errorf("ByIndex() error = %v, want ErrNoInterface", err)
	}
}

func TestNetInfoSetAndRemove(t *testing.T) {
	n := New()
	n.Set(dhcp6.Iface{Index: 2, Name: "eth0", LinkUp: true})

	iface, err := n.ByIndex(2)
	if err != nil {
		t.Fatalf("ByIndex: %v", err)
	}
	if iface.Name != "eth0" || !iface.LinkUp {
		t.Errorf("ByIndex() = %+v, want eth0/up", iface)
	}

	all, err := n.All()
	if err != nil || len(all) != 1 {
		t.Fatalf("All() = %v, %v", all, err)
	}

	n.Remove(2)
	if _, err := n.ByIndex(2); !errors.Is(err, dhcp6.ErrNoInterface) {
		t.Errorf("ByIndex() after Remove error = %v, want ErrNoInterface", err)
	}
}
