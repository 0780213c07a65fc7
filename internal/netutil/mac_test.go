// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import "testing"

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"lowercase colons", "aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff", false},
		{"uppercase", "AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"dashes", "aa-bb-cc-dd-ee-ff", "aa:bb:cc:dd:ee:ff", false},
		{"surrounding space", "  aa:bb:cc:dd:ee:ff ", "aa:bb:cc:dd:ee:ff", false},
		{"empty", "", "", true},
		{"garbage", "not-a-mac", "", true},
		{"too short", "aa:bb:cc", "", true},
		{"eui-64 rejected", "aa:bb:cc:dd:ee:ff:00:11", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMAC(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidIP(t *testing.T) {
	valid := []string{"192.168.1.10", "10.0.0.1", "fe80::1", "2001:db8::2"}
	for _, ip := range valid {
		if !ValidIP(ip) {
			t.Errorf("ValidIP(%q) = false, want true", ip)
		}
	}
	invalid := []string{"", "256.1.1.1", "0.0.0.0", "224.0.0.1", "hostname"}
	for _, ip := range invalid {
		if ValidIP(ip) {
			t.Errorf("ValidIP(%q) = true, want false", ip)
		}
	}
}
