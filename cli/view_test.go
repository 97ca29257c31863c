package cli

import (
	"reflect"
	"testing"
)

func TestRemoveFirstDashDash(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty slice",
			in:   []string{},
			want: []string{},
		},
		{
			name: "starts with --",
			in:   []string{"--", "-short", "-timeout=1m"},
			want: []string{"-short", "-timeout=1m"},
		},
		{
			name: "no --",
			in:   []string{"-short", "-timeout=1m"},
			want: []string{"-short", "-timeout=1m"},
		},
		{
			name: "only --",
			in:   []string{"--"},
			want: []string{},
		},
		{
			name: "-- in middle",
			in:   []string{"-race", "--", "-short"},
			want: []string{"-race", "--", "-short"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removeFirstDashDash(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("removeFirstDashDash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseViewArgs(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    viewArgs
		wantErr bool
	}{
		{
			name: "empty args - default to 0",
			in:   []string{},
			want: viewArgs{ID: "0"},
		},
		{
			name: "only ID - negative index",
			in:   []string{"-1"},
			want: viewArgs{ID: "-1"},
		},
		{
			name: "only ID - hex string",
			in:   []string{"abc123"},
			want: viewArgs{ID: "abc123"},
		},
		{
			name: "test pattern without ID",
			in:   []string{"--test", "*Store*"},
			want: viewArgs{ID: "0", Test: "*Store*"},
		},
		{
			name: "test pattern with equals",
			in:   []string{"-2", "--test=*.TestA"},
			want: viewArgs{ID: "-2", Test: "*.TestA"},
		},
		{
			name: "output after ID",
			in:   []string{"abc123", "--output"},
			want: viewArgs{ID: "abc123", Output: true},
		},
		{
			name: "dash dash is ignored",
			in:   []string{"--", "-1"},
			want: viewArgs{ID: "-1"},
		},
		{
			name:    "test flag without value",
			in:      []string{"--test"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			in:      []string{"-top"},
			wantErr: true,
		},
		{
			name:    "two IDs",
			in:      []string{"0", "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseViewArgs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseViewArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseViewArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
