// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package timeutil

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestToRFC3339Nano(t *testing.T) {
	tests := []struct {
		name   string
		human  string
		offset *int
		want   string
	}{
		{"negative offset", "2024-02-20 03:04:00", intPtr(-120), "2024-02-20T03:04:00.000000000-02:00"},
		{"half hour offset", "2024-02-20 03:04:00", intPtr(330), "2024-02-20T03:04:00.000000000+05:30"},
		{"utc", "2024-02-20 03:04:00", intPtr(0), "2024-02-20T03:04:00.000000000+00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToRFC3339Nano(tt.human, tt.offset)
			if err != nil {
				t.Fatalf("ToRFC3339Nano() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ToRFC3339Nano() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToRFC3339Nano_Invalid(t *testing.T) {
	if _, err := ToRFC3339Nano("not-a-date", nil); err == nil {
		t.Error("ToRFC3339Nano() should fail on invalid input")
	}
}

func TestToUnixMillis(t *testing.T) {
	got, err := ToUnixMillis("2020-02-29 12:00:00", intPtr(0))
	if err != nil {
		t.Fatalf("ToUnixMillis() error = %v", err)
	}
	want := time.Date(2020, 2, 29, 12, 0, 0, 0, time.UTC).UnixMilli()
	if got != want {
		t.Errorf("ToUnixMillis() = %d, want %d", got, want)
	}

	plusOne, err := ToUnixMillis("2020-02-29 12:00:00", intPtr(60))
	if err != nil {
		t.Fatalf("ToUnixMillis() error = %v", err)
	}
	if want-plusOne != 3600*1000 {
		t.Errorf("UTC+1 should be one hour earlier in epoch, diff = %d", want-plusOne)
	}
}

func TestToUnixMillis_Invalid(t *testing.T) {
	if _, err := ToUnixMillis("2021-02-29 12:00:00", nil); err == nil {
		t.Error("ToUnixMillis() should reject a day that does not exist")
	}
}

func TestFileStamp(t *testing.T) {
	if got := FileStamp("2024-02-20 03:04:00"); got != "2024-02-20_03-04-00" {
		t.Errorf("FileStamp() = %q", got)
	}
}
