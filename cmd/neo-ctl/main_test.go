package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/neo.lidar/internal/monitoring"
	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/timeutil"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    request
		wantErr bool
	}{
		{args: []string{"/dev/ttyACM0", "get", "motor_speed"}, want: request{device: "/dev/ttyACM0", setting: "motor_speed"}},
		{args: []string{"/dev/ttyACM0", "set", "sample_rate", "750"}, want: request{device: "/dev/ttyACM0", set: true, setting: "sample_rate", value: 750}},
		{args: []string{"/dev/ttyACM0", "get"}, wantErr: true},
		{args: []string{"/dev/ttyACM0", "get", "motor_speed", "5"}, wantErr: true},
		{args: []string{"/dev/ttyACM0", "set", "motor_speed"}, wantErr: true},
		{args: []string{"/dev/ttyACM0", "set", "motor_speed", "fast"}, wantErr: true},
		{args: []string{"/dev/ttyACM0", "toggle", "motor_speed"}, wantErr: true},
		{args: []string{"/dev/ttyACM0", "get", "laser"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseArgs(%q) succeeded, want error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseArgs(%q) failed: %v", tt.args, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(request{})); diff != "" {
			t.Errorf("parseArgs(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestExecute(t *testing.T) {
	monitoring.SetLogger(nil)
	sim := neo.NewSimulator(neo.SimulatorConfig{})
	dev, err := neo.New(context.Background(), sim, neo.Options{Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	ctx := context.Background()

	var out bytes.Buffer
	if err := execute(ctx, dev, request{set: true, setting: "motor_speed", value: 3}, &out); err != nil {
		t.Fatalf("set motor_speed: %v", err)
	}
	if err := execute(ctx, dev, request{setting: "sample_rate"}, &out); err != nil {
		t.Fatalf("get sample_rate: %v", err)
	}
	if want := "motor_speed: 3 Hz\nsample_rate: 500 Hz\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	err = execute(ctx, dev, request{set: true, setting: "motor_speed", value: 42}, &out)
	if !errors.Is(err, neo.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
