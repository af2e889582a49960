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

import "strings"

// ValidateHostname checks a hostname against RFC 1035 §2.3.1 label rules
// before it is carried in a Client FQDN option (spec §4.3): each
// dot-separated label is 1-63 characters, starts and ends with a letter
// or digit, and contains only letters, digits and hyphens. An empty
// hostname is valid (the option is simply omitted).
func ValidateHostname(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	for _, label := range strings.Split(name, ".") {
		if !validLabel(label) {
			return "", ErrInvalidHostname
		}
	}
	return name, nil
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	if !isAlnum(label[0]) || !isAlnum(label[len(label)-1]) {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isAlnum(c) && c != '-' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
